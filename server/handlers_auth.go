package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"Syncd/server/auth"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleRegister creates a new account. By deliberate asymmetry,
// registration does not issue or persist tokens — only login does; a
// freshly registered client still has to log in.
func (s *Server) handleRegister(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		fail(c, http.StatusBadRequest, codeBadRequest, "username and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.Log.WithError(err).Error("hash password")
		fail(c, http.StatusInternalServerError, codeInternal, "could not create account")
		return
	}

	if err := s.Users.Register(req.Username, hash); err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			fail(c, http.StatusConflict, codeConflict, "username already exists")
			return
		}
		s.Log.WithError(err).Error("register user")
		fail(c, http.StatusInternalServerError, codeInternal, "could not create account")
		return
	}

	ok(c, gin.H{"username": req.Username})
}

type sessionResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	TokenType    string `json:"token_type"`
	Username     string `json:"username"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		fail(c, http.StatusBadRequest, codeBadRequest, "username and password are required")
		return
	}

	hash, err := s.Users.PasswordHash(req.Username)
	if errors.Is(err, auth.ErrUserNotFound) {
		fail(c, http.StatusUnauthorized, codeUnauth, "invalid username or password")
		return
	}
	if err != nil {
		s.Log.WithError(err).Error("lookup user")
		fail(c, http.StatusInternalServerError, codeInternal, "login failed")
		return
	}

	valid, err := auth.VerifyPassword(req.Password, hash)
	if err != nil {
		s.Log.WithError(err).Error("verify password")
		fail(c, http.StatusInternalServerError, codeInternal, "login failed")
		return
	}
	if !valid {
		fail(c, http.StatusUnauthorized, codeUnauth, "invalid username or password")
		return
	}

	resp, err := s.issueSession(req.Username)
	if err != nil {
		s.Log.WithError(err).Error("issue session")
		fail(c, http.StatusInternalServerError, codeInternal, "login failed")
		return
	}
	ok(c, resp)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		fail(c, http.StatusBadRequest, codeBadRequest, "refresh_token is required")
		return
	}

	username, err := s.Issuer.Verify(req.RefreshToken)
	if err != nil {
		fail(c, http.StatusUnauthorized, codeUnauth, "invalid or expired refresh token")
		return
	}

	access, expiresAt, err := s.Issuer.IssueAccess(username)
	if err != nil {
		s.Log.WithError(err).Error("issue access token")
		fail(c, http.StatusInternalServerError, codeInternal, "refresh failed")
		return
	}

	ok(c, sessionResponse{
		AccessToken:  access,
		RefreshToken: req.RefreshToken,
		ExpiresAt:    expiresAt,
		TokenType:    "bearer",
		Username:     username,
	})
}

func (s *Server) issueSession(username string) (sessionResponse, error) {
	access, expiresAt, err := s.Issuer.IssueAccess(username)
	if err != nil {
		return sessionResponse{}, err
	}
	refresh, _, err := s.Issuer.IssueRefresh(username)
	if err != nil {
		return sessionResponse{}, err
	}
	return sessionResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		TokenType:    "bearer",
		Username:     username,
	}, nil
}
