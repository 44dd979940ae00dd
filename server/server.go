// Package server is the Server Upload Engine (C8): gin routes for
// authentication and the multipart upload/delete surface, plus the
// supplemented list/get/health routes a full sync backend needs.
package server

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"Syncd/server/auth"
	"Syncd/server/blobstore"
	serverindex "Syncd/server/index"
)

// Server wires together the collaborators every route handler needs.
type Server struct {
	Users  *auth.UserStore
	Issuer *auth.Issuer
	Index  serverindex.Index
	Blobs  *blobstore.DiskStore
	Mirror *blobstore.Mirror // nil when no mirror is configured
	Log    *logrus.Entry
}

// Engine builds the gin.Engine with every route registered.
func (s *Server) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	r.GET("/healthz", s.handleHealth)

	authGroup := r.Group("/auth")
	authGroup.POST("/register", s.handleRegister)
	authGroup.POST("/login", s.handleLogin)
	authGroup.POST("/refresh", s.handleRefresh)

	fileGroup := r.Group("/file")
	fileGroup.Use(auth.Middleware(s.Issuer))
	fileGroup.POST("/upload", s.handleUpload)
	fileGroup.DELETE("/delete", s.handleDelete)
	fileGroup.GET("/list", s.handleList)
	fileGroup.GET("", s.handleGet)

	return r
}

// requestLogger stamps every request with an opaque request-id so a
// single line in the logs can be correlated with whatever a client
// reports back.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Set("requestID", requestID)
		c.Next()
		s.Log.WithField("request_id", requestID).
			WithField("method", c.Request.Method).
			WithField("path", c.Request.URL.Path).
			WithField("status", c.Writer.Status()).
			Info("request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(200, gin.H{"status": "OK"})
}
