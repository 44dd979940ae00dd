package server

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"Syncd/internal/hashutil"
	"Syncd/server/auth"
	serverindex "Syncd/server/index"
)

const maxUploadMemory = 32 << 20

var errAlreadyExists = errors.New("server: file already exists")

// handleUpload implements the Server Upload Engine's per-file algorithm:
// sanitize the filename token, resolve it under the user's namespace,
// reject duplicates without overwriting, stream to disk, hash, and record
// in the server index. Auxiliary fields (path_<F>, last_modified_<F>) are
// read from the parsed form regardless of their arrival order relative to
// file_<F> — ParseMultipartForm buffers the whole request first.
func (s *Server) handleUpload(c *gin.Context) {
	username := auth.Username(c)

	if err := c.Request.ParseMultipartForm(maxUploadMemory); err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, "could not parse multipart body")
		return
	}
	form := c.Request.MultipartForm

	uploaded := map[string]string{}
	failed := map[string]string{}

	for field, headers := range form.File {
		if !strings.HasPrefix(field, "file_") || len(headers) == 0 {
			continue
		}
		token := strings.TrimPrefix(field, "file_")
		clean := sanitizeFilename(token)

		clientPath := firstValue(form.Value["path_"+token])
		lastModifiedRaw := firstValue(form.Value["last_modified_"+token])

		reason, err := s.storeUploadedFile(c.Request.Context(), username, clean, clientPath, lastModifiedRaw, headers[0])
		if err != nil {
			failed[clean] = reason
			continue
		}
		uploaded[clean] = reason
	}

	if len(uploaded)+len(failed) == 0 {
		fail(c, http.StatusBadRequest, codeBadRequest, "no files present in request")
		return
	}
	ok(c, gin.H{"uploaded": uploaded, "failed": failed})
}

func (s *Server) storeUploadedFile(ctx context.Context, username, filename, clientPath, lastModifiedRaw string, header *multipart.FileHeader) (reason string, err error) {
	diskPath, storedPath, err := s.Blobs.Resolve(username, clientPath, filename)
	if err != nil {
		return "invalid path", err
	}

	if _, getErr := s.Index.Get(ctx, username, storedPath); getErr == nil {
		return "File already exists", errAlreadyExists
	}

	src, err := header.Open()
	if err != nil {
		return "could not read upload", err
	}
	defer src.Close()

	dst, err := s.Blobs.Create(diskPath)
	if err != nil {
		return "could not store file", err
	}
	if _, copyErr := io.Copy(dst, src); copyErr != nil {
		dst.Close()
		return "could not store file", copyErr
	}
	if closeErr := dst.Close(); closeErr != nil {
		return "could not store file", closeErr
	}

	hash := hashutil.FileHash(diskPath)
	lastModified := time.Now().UTC()
	if lastModifiedRaw != "" {
		if parsed, parseErr := time.Parse(time.RFC3339, lastModifiedRaw); parseErr == nil {
			lastModified = parsed
		}
	}

	if err := s.Index.Insert(ctx, serverindex.Record{
		Username:     username,
		Path:         storedPath,
		ContentHash:  hash,
		LastModified: lastModified,
	}); err != nil {
		return "could not record upload", err
	}

	if s.Mirror != nil {
		if err := s.Mirror.UploadIfMissing(ctx, diskPath, hash); err != nil {
			s.Log.WithError(err).WithField("path", storedPath).Warn("mirror upload failed")
		}
	}

	return "uploaded", nil
}

// handleDelete resolves path to uploads/<username>/<path>. A directory
// target is removed recursively without touching the index (directories
// aren't index rows themselves). A file target must already have an
// index row — absence there means NOT_FOUND and disk is never touched —
// then disk and index are removed together.
func (s *Server) handleDelete(c *gin.Context) {
	username := auth.Username(c)
	clientPath := c.Query("path")
	if clientPath == "" {
		fail(c, http.StatusBadRequest, codeBadRequest, "path is required")
		return
	}

	isDir, err := s.Blobs.IsDir(username, clientPath)
	if err != nil {
		fail(c, http.StatusBadRequest, codeBadRequest, "invalid path")
		return
	}

	if isDir {
		if _, err := s.Blobs.Delete(username, clientPath); err != nil {
			fail(c, http.StatusInternalServerError, codeInternal, "could not delete directory")
			return
		}
		ok(c, nil)
		return
	}

	storedPath := s.Blobs.StoredPath(username, clientPath)
	if _, err := s.Index.Get(c.Request.Context(), username, storedPath); err != nil {
		fail(c, http.StatusNotFound, codeNotFound, "file not found")
		return
	}

	if _, err := s.Blobs.Delete(username, clientPath); err != nil {
		fail(c, http.StatusInternalServerError, codeInternal, "could not delete file")
		return
	}
	if err := s.Index.Delete(c.Request.Context(), username, storedPath); err != nil {
		s.Log.WithError(err).WithField("path", storedPath).Warn("index delete after disk delete")
	}
	ok(c, nil)
}

func (s *Server) handleList(c *gin.Context) {
	username := auth.Username(c)
	records, err := s.Index.ListByUser(c.Request.Context(), username)
	if err != nil {
		s.Log.WithError(err).Error("list records")
		fail(c, http.StatusInternalServerError, codeInternal, "could not list files")
		return
	}
	ok(c, gin.H{"files": records})
}

func (s *Server) handleGet(c *gin.Context) {
	username := auth.Username(c)
	path := c.Query("path")
	if path == "" {
		fail(c, http.StatusBadRequest, codeBadRequest, "path is required")
		return
	}
	rec, err := s.Index.Get(c.Request.Context(), username, path)
	if err != nil {
		fail(c, http.StatusNotFound, codeNotFound, "file not found")
		return
	}
	ok(c, rec)
}

func sanitizeFilename(token string) string {
	token = strings.ReplaceAll(token, "/", "_")
	token = strings.ReplaceAll(token, `\`, "_")
	return token
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
