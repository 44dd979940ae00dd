// Package remoteclient is the Remote Client (C5): the thin authenticated
// HTTP surface the reconcilers drive. It owns the refresh, upload and
// delete endpoints the reconcilers use, the register and login endpoints
// the CLI uses, and the refresh-on-expiry policy gating every
// authenticated call.
package remoteclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"time"

	"Syncd/internal/model"
	"Syncd/internal/token"
)

// Client is the authenticated HTTP surface for one server.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  *token.Dir
}

// New builds a Client for baseURL, persisting/reading sessions through
// tokens.
func New(baseURL string, tokens *token.Dir) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		tokens:  tokens,
	}
}

// envelope mirrors the wire protocol's JSON shape for both success and
// error responses; callers inspect Status to decide which fields apply.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// APIError is returned for any non-2xx response; Code is the envelope's
// status code (BAD_REQUEST, UNAUTHORIZED, NOT_FOUND, CONFLICT,
// INTERNAL_SERVER_ERROR).
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remoteclient: %s: %s", e.Code, e.Message)
}

// refreshResponse is the /auth/refresh success payload.
type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	TokenType    string `json:"token_type"`
	Username     string `json:"username"`
}

// Register creates an account on the server. Per the wire protocol's
// deliberate asymmetry, registration does not return a session — callers
// still need to call Login afterward.
func (c *Client) Register(ctx context.Context, username, password string) error {
	return c.postCredentials(ctx, "/auth/register", username, password, nil)
}

// Login exchanges credentials for a session and persists it.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var rr refreshResponse
	if err := c.postCredentials(ctx, "/auth/login", username, password, &rr); err != nil {
		return err
	}
	return c.tokens.SaveTokens(model.TokenState{
		AccessToken:  rr.AccessToken,
		RefreshToken: rr.RefreshToken,
		TokenType:    "bearer",
		ExpiresAt:    rr.ExpiresAt,
	})
}

func (c *Client) postCredentials(ctx context.Context, path, username, password string, out any) error {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return fmt.Errorf("remoteclient: marshal credentials: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("remoteclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// Refresh exchanges the stored refresh token for a new access token and
// persists the result.
func (c *Client) Refresh(ctx context.Context) error {
	ts, err := c.tokens.LoadTokens()
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{"refresh_token": ts.RefreshToken})
	if err != nil {
		return fmt.Errorf("remoteclient: marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/refresh", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("remoteclient: build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var rr refreshResponse
	if err := c.do(req, &rr); err != nil {
		return err
	}

	next := model.TokenState{
		AccessToken:  rr.AccessToken,
		RefreshToken: ts.RefreshToken,
		TokenType:    "bearer",
		ExpiresAt:    rr.ExpiresAt,
	}
	if rr.RefreshToken != "" {
		next.RefreshToken = rr.RefreshToken
	}
	return c.tokens.SaveTokens(next)
}

// ensureFresh implements the refresh-on-expiry policy: read the stored
// access token, refresh up front if it's expired, never retry on 401.
func (c *Client) ensureFresh(ctx context.Context) (string, error) {
	ts, err := c.tokens.LoadTokens()
	if err != nil {
		return "", err
	}
	if token.IsExpired(ts, time.Now()) {
		if err := c.Refresh(ctx); err != nil {
			return "", fmt.Errorf("remoteclient: refresh: %w", err)
		}
		ts, err = c.tokens.LoadTokens()
		if err != nil {
			return "", err
		}
	}
	return ts.AccessToken, nil
}

// UploadFile describes one file to include in a batched upload request.
type UploadFile struct {
	// Filename is the sanitized <F> token shared across the three parts.
	Filename     string
	ScopePath    string
	LastModified time.Time
	LocalPath    string
}

// UploadResult mirrors the server's per-file success/failure envelope.
type UploadResult struct {
	Uploaded map[string]string `json:"uploaded"`
	Failed   map[string]string `json:"failed"`
}

// Upload sends one multipart request carrying every file in files. Per the
// wire protocol, auxiliary fields (path_<F>, last_modified_<F>) are
// written before the file_<F> body for each entry — the happy-path order
// the server expects, though it tolerates any order.
func (c *Client) Upload(ctx context.Context, files []UploadFile) (UploadResult, error) {
	accessToken, err := c.ensureFresh(ctx)
	if err != nil {
		return UploadResult{}, err
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range files {
		if err := w.WriteField("path_"+f.Filename, f.ScopePath); err != nil {
			return UploadResult{}, fmt.Errorf("remoteclient: write path field: %w", err)
		}
		if err := w.WriteField("last_modified_"+f.Filename, f.LastModified.UTC().Format(time.RFC3339)); err != nil {
			return UploadResult{}, fmt.Errorf("remoteclient: write last_modified field: %w", err)
		}
		part, err := w.CreateFormFile("file_"+f.Filename, f.Filename)
		if err != nil {
			return UploadResult{}, fmt.Errorf("remoteclient: create file part: %w", err)
		}
		src, err := os.Open(f.LocalPath)
		if err != nil {
			return UploadResult{}, fmt.Errorf("remoteclient: open %s: %w", f.LocalPath, err)
		}
		_, copyErr := io.Copy(part, src)
		closeErr := src.Close()
		if copyErr != nil {
			return UploadResult{}, fmt.Errorf("remoteclient: read %s: %w", f.LocalPath, copyErr)
		}
		if closeErr != nil {
			return UploadResult{}, fmt.Errorf("remoteclient: close %s: %w", f.LocalPath, closeErr)
		}
	}
	if err := w.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("remoteclient: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/file/upload", &buf)
	if err != nil {
		return UploadResult{}, fmt.Errorf("remoteclient: build upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var result UploadResult
	if err := c.do(req, &result); err != nil {
		return UploadResult{}, err
	}
	return result, nil
}

// Delete issues an authenticated delete for scopePath.
func (c *Client) Delete(ctx context.Context, scopePath string) error {
	accessToken, err := c.ensureFresh(ctx)
	if err != nil {
		return err
	}

	u := c.baseURL + "/file/delete?path=" + url.QueryEscape(scopePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("remoteclient: build delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	return c.do(req, nil)
}

// do executes req, decodes the envelope, and unmarshals its data payload
// into out (if non-nil and the call succeeded).
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remoteclient: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("remoteclient: decode response (status %s): %w", resp.Status, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Code: env.Status, Message: env.Error}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("remoteclient: decode data: %w", err)
	}
	return nil
}

