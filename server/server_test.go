package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"Syncd/server/auth"
	"Syncd/server/blobstore"
	serverindex "Syncd/server/index"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users, err := auth.NewUserStore(filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { users.Close() })

	idx, err := serverindex.New(context.Background(), serverindex.Config{SQLitePath: filepath.Join(t.TempDir(), "index.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })

	blobs, err := blobstore.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)

	return &Server{
		Users:  users,
		Issuer: auth.NewIssuer("test-secret"),
		Index:  idx,
		Blobs:  blobs,
		Log:    log.WithField("test", true),
	}
}

func decodeEnvelope(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var env map[string]any
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatal(err)
	}
	return env
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestRegisterLoginRefreshFlow(t *testing.T) {
	s := newTestServer(t)
	e := s.Engine()

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "hunter2"})
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("register: got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("login: got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec.Body.Bytes())
	data := env["data"].(map[string]any)
	refreshToken := data["refresh_token"].(string)
	if refreshToken == "" {
		t.Fatal("expected a refresh token")
	}

	rbody, _ := json.Marshal(map[string]string{"refresh_token": refreshToken})
	req = httptest.NewRequest(http.MethodPost, "/auth/refresh", bytes.NewReader(rbody))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("refresh: got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	s := newTestServer(t)
	e := s.Engine()

	body, _ := json.Marshal(map[string]string{"username": "bob", "password": "right"})
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	e.ServeHTTP(httptest.NewRecorder(), req)

	badBody, _ := json.Marshal(map[string]string{"username": "bob", "password": "wrong"})
	req = httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(badBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d", rec.Code)
	}
}

func loginAndGetToken(t *testing.T, e http.Handler, username, password string) string {
	t.Helper()
	regBody, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(regBody))
	req.Header.Set("Content-Type", "application/json")
	e.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(regBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	env := decodeEnvelope(t, rec.Body.Bytes())
	data := env["data"].(map[string]any)
	return data["access_token"].(string)
}

func multipartUpload(t *testing.T, filename, pathField, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if pathField != "" {
		w.WriteField("path_"+filename, pathField)
	}
	w.WriteField("last_modified_"+filename, "2026-01-01T00:00:00Z")
	part, err := w.CreateFormFile("file_"+filename, filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(content))
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestUploadThenDuplicateRejected(t *testing.T) {
	s := newTestServer(t)
	e := s.Engine()
	token := loginAndGetToken(t, e, "carol", "pw123456")

	body, contentType := multipartUpload(t, "song.wav", "", "bytes")
	req := httptest.NewRequest(http.MethodPost, "/file/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("upload: got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec.Body.Bytes())
	data := env["data"].(map[string]any)
	uploaded := data["uploaded"].(map[string]any)
	if uploaded["song.wav"] != "uploaded" {
		t.Fatalf("got %+v", data)
	}

	body2, contentType2 := multipartUpload(t, "song.wav", "", "bytes-again")
	req = httptest.NewRequest(http.MethodPost, "/file/upload", body2)
	req.Header.Set("Content-Type", contentType2)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	env = decodeEnvelope(t, rec.Body.Bytes())
	data = env["data"].(map[string]any)
	failed := data["failed"].(map[string]any)
	if failed["song.wav"] != "File already exists" {
		t.Fatalf("got %+v", data)
	}
}

func TestUploadRejectsMissingAuth(t *testing.T) {
	s := newTestServer(t)
	e := s.Engine()

	body, contentType := multipartUpload(t, "song.wav", "", "bytes")
	req := httptest.NewRequest(http.MethodPost, "/file/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestDeleteDirectoryDoesNotTouchIndex(t *testing.T) {
	s := newTestServer(t)
	e := s.Engine()
	token := loginAndGetToken(t, e, "dave", "pw123456")

	body, contentType := multipartUpload(t, "track.wav", "album", "bytes")
	req := httptest.NewRequest(http.MethodPost, "/file/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	e.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodDelete, "/file/delete?path=album", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}

	records, err := s.Index.ListByUser(context.Background(), "dave")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("expected directory delete to leave the index row in place, got %d rows", len(records))
	}
}

func TestDeleteFileRemovesDiskAndIndex(t *testing.T) {
	s := newTestServer(t)
	e := s.Engine()
	token := loginAndGetToken(t, e, "erin", "pw123456")

	body, contentType := multipartUpload(t, "notes.txt", "", "bytes")
	req := httptest.NewRequest(http.MethodPost, "/file/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	e.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodDelete, "/file/delete?path=notes.txt", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}

	records, err := s.Index.ListByUser(context.Background(), "erin")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("expected file delete to remove the index row, got %d rows", len(records))
	}
}

// TestDeleteOrphanFileRejected covers the crash-recovery scenario where a
// file landed on disk but its index row never committed: delete must
// check the index first and refuse, leaving the orphaned bytes in place,
// rather than deleting whatever it finds on disk.
func TestDeleteOrphanFileRejected(t *testing.T) {
	s := newTestServer(t)
	e := s.Engine()
	token := loginAndGetToken(t, e, "frank", "pw123456")

	diskPath, _, err := s.Blobs.Resolve("frank", "", "orphan.txt")
	if err != nil {
		t.Fatal(err)
	}
	f, err := s.Blobs.Create(diskPath)
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	req := httptest.NewRequest(http.MethodDelete, "/file/delete?path=orphan.txt", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("got %d: %s", rec.Code, rec.Body.String())
	}

	if _, err := os.Stat(diskPath); err != nil {
		t.Errorf("orphan file should not have been deleted from disk: %v", err)
	}
}
