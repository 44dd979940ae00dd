// Command syncd is the synchronization core's CLI: `server` stands up the
// Server Upload Engine, `client` drives set-url/register/login/refresh/
// start against a running server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"Syncd/internal/config"
	"Syncd/internal/index"
	"Syncd/internal/logging"
	"Syncd/internal/reconcile"
	"Syncd/internal/remoteclient"
	"Syncd/internal/token"
	"Syncd/server"
	"Syncd/server/auth"
	"Syncd/server/blobstore"
	serverindex "Syncd/server/index"
)

const appName = "syncd"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "syncd",
		Short:         "synchronization core: server and client commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServerCmd())
	root.AddCommand(newClientCmd())
	return root
}

func newServerCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "server",
		Short: "run the server upload engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "listen port")
	return cmd
}

func runServer(port int) error {
	log := logging.New("server")

	cfg, err := config.LoadServer(port)
	if err != nil {
		return err
	}

	users, err := auth.NewUserStore(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("open user store: %w", err)
	}
	defer users.Close()

	idx, err := serverindex.New(context.Background(), serverindex.Config{
		Backend:            pickIndexBackend(cfg),
		SQLitePath:         cfg.SQLitePath,
		FirestoreProjectID: cfg.FirestoreID,
	})
	if err != nil {
		return fmt.Errorf("open server index: %w", err)
	}
	defer idx.Close()

	blobs, err := blobstore.NewDiskStore(cfg.BlobRoot)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	var mirror *blobstore.Mirror
	if cfg.R2Bucket != "" {
		mirror, err = blobstore.NewMirror(context.Background(), blobstore.MirrorConfig{
			Bucket:    cfg.R2Bucket,
			AccountID: os.Getenv("SYNCD_R2_ACCOUNT_ID"),
			AccessKey: os.Getenv("SYNCD_R2_ACCESS_KEY"),
			SecretKey: os.Getenv("SYNCD_R2_SECRET_KEY"),
		})
		if err != nil {
			log.WithError(err).Warn("R2 mirror requested but could not be configured; continuing without it")
		}
	}

	srv := &server.Server{
		Users:  users,
		Issuer: auth.NewIssuer(cfg.JWTSecret),
		Index:  idx,
		Blobs:  blobs,
		Mirror: mirror,
		Log:    log,
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.WithField("addr", addr).Info("listening")

	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		return http.ListenAndServeTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile, srv.Engine())
	}
	return http.ListenAndServe(addr, srv.Engine())
}

func pickIndexBackend(cfg config.Server) string {
	if cfg.FirestoreID != "" {
		return "firestore"
	}
	return "sqlite"
}

func newClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "client commands: set-url, register, login, refresh, start",
	}
	cmd.AddCommand(newSetURLCmd())
	cmd.AddCommand(newRegisterCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newStartCmd())
	return cmd
}

func clientTokenDir() (*token.Dir, error) {
	dir, err := config.ClientDir(appName)
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}
	return token.New(dir), nil
}

func clientRemote(d *token.Dir) (*remoteclient.Client, error) {
	baseURL, err := d.LoadURL()
	if err != nil {
		return nil, err
	}
	return remoteclient.New(baseURL, d), nil
}

func newSetURLCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "set-url",
		Short: "configure the server base URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := clientTokenDir()
			if err != nil {
				return err
			}
			return d.SaveURL(url)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "server base URL")
	cmd.MarkFlagRequired("url")
	return cmd
}

func newRegisterCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "create an account on the configured server",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := clientTokenDir()
			if err != nil {
				return err
			}
			rc, err := clientRemote(d)
			if err != nil {
				return err
			}
			return rc.Register(cmd.Context(), username, password)
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("password")
	return cmd
}

func newLoginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "log in and persist a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := clientTokenDir()
			if err != nil {
				return err
			}
			rc, err := clientRemote(d)
			if err != nil {
				return err
			}
			return rc.Login(cmd.Context(), username, password)
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.MarkFlagRequired("username")
	cmd.MarkFlagRequired("password")
	return cmd
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "force a token refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := clientTokenDir()
			if err != nil {
				return err
			}
			rc, err := clientRemote(d)
			if err != nil {
				return err
			}
			return rc.Refresh(cmd.Context())
		},
	}
}

func newStartCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "run the initial reconciler then watch for changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), path)
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "directory to sync")
	cmd.MarkFlagRequired("path")
	return cmd
}

func runStart(ctx context.Context, rootSupplied string) error {
	log := logging.New("client")

	d, err := clientTokenDir()
	if err != nil {
		return err
	}
	rc, err := clientRemote(d)
	if err != nil {
		return err
	}

	rootAbs, err := filepath.Abs(rootSupplied)
	if err != nil {
		return fmt.Errorf("resolve watch root: %w", err)
	}
	rootCanonical, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return fmt.Errorf("resolve watch root: %w", err)
	}

	configDir, err := config.ClientDir(appName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return fmt.Errorf("ensure config dir: %w", err)
	}

	idx, err := index.New(index.Config{Path: filepath.Join(configDir, "index.db")})
	if err != nil {
		return fmt.Errorf("open local index: %w", err)
	}
	defer idx.Close()

	deps := &reconcile.Deps{
		Index:         idx,
		Remote:        rc,
		Log:           log,
		RootSupplied:  rootSupplied,
		RootCanonical: rootCanonical,
	}

	if err := deps.RunInitial(ctx); err != nil {
		return fmt.Errorf("initial reconciliation: %w", err)
	}
	return deps.RunLive(ctx)
}
