package reconcile

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"Syncd/internal/index"
	"Syncd/internal/model"
	"Syncd/internal/remoteclient"
	"Syncd/internal/token"
)

func writeEnvelope(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	json.NewEncoder(w).Encode(map[string]any{"status": "OK", "data": json.RawMessage(raw)})
}

func newDeps(t *testing.T, root string, uploaded, deleted *[]string) *Deps {
	t.Helper()
	idx, err := index.New(index.Config{Path: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/file/upload":
			r.ParseMultipartForm(1 << 20)
			for name := range r.MultipartForm.File {
				*uploaded = append(*uploaded, name)
			}
			writeEnvelope(t, w, remoteclient.UploadResult{Uploaded: map[string]string{}, Failed: map[string]string{}})
		case r.URL.Path == "/file/delete":
			*deleted = append(*deleted, r.URL.Query().Get("path"))
			writeEnvelope(t, w, nil)
		}
	}))
	t.Cleanup(srv.Close)

	td := token.New(filepath.Join(t.TempDir(), "syncd"))
	if err := td.SaveTokens(model.TokenState{
		AccessToken: "a", RefreshToken: "r", TokenType: "bearer",
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}); err != nil {
		t.Fatal(err)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)

	return &Deps{
		Index:         idx,
		Remote:        remoteclient.New(srv.URL, td),
		Log:           log.WithField("test", true),
		RootSupplied:  root,
		RootCanonical: root,
	}
}

func TestRunInitialUploadsNewFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	var uploaded, deleted []string
	d := newDeps(t, root, &uploaded, &deleted)

	if err := d.RunInitial(t.Context()); err != nil {
		t.Fatal(err)
	}
	if len(uploaded) != 1 {
		t.Fatalf("got %v uploads, want 1", uploaded)
	}

	rec, err := d.Index.Get(root, root+"/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ContentHash == "" {
		t.Error("expected a hash to be recorded")
	}
}

func TestRunInitialIsIdempotent(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	var uploaded, deleted []string
	d := newDeps(t, root, &uploaded, &deleted)

	if err := d.RunInitial(t.Context()); err != nil {
		t.Fatal(err)
	}
	uploaded = nil
	if err := d.RunInitial(t.Context()); err != nil {
		t.Fatal(err)
	}
	if len(uploaded) != 0 {
		t.Errorf("second run uploaded %v, want none", uploaded)
	}
}

func TestRunInitialDeletesMissingRows(t *testing.T) {
	root := t.TempDir()
	fpath := filepath.Join(root, "a.txt")
	if err := os.WriteFile(fpath, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	var uploaded, deleted []string
	d := newDeps(t, root, &uploaded, &deleted)

	if err := d.RunInitial(t.Context()); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(fpath); err != nil {
		t.Fatal(err)
	}
	if err := d.RunInitial(t.Context()); err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 1 {
		t.Fatalf("got %v deletes, want 1", deleted)
	}

	rows, err := d.Index.List(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("expected index to be empty after delete, got %+v", rows)
	}
}

func TestSanitizeTokenDisambiguatesCollisions(t *testing.T) {
	used := map[string]int{}
	a := sanitizeToken("root/dir1/song.wav", used)
	b := sanitizeToken("root/dir2/song.wav", used)
	if a == b {
		t.Errorf("expected distinct tokens, got %q twice", a)
	}
}
