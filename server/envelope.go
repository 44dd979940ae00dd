package server

import "github.com/gin-gonic/gin"

// ok writes the wire protocol's success envelope.
func ok(c *gin.Context, data any) {
	c.JSON(200, gin.H{"status": "OK", "message": "Success", "data": data})
}

// fail writes the wire protocol's error envelope with the matching HTTP
// status for code.
func fail(c *gin.Context, httpStatus int, code, message string) {
	c.AbortWithStatusJSON(httpStatus, gin.H{"status": code, "error": message})
}

const (
	codeBadRequest = "BAD_REQUEST"
	codeNotFound   = "NOT_FOUND"
	codeConflict   = "CONFLICT"
	codeInternal   = "INTERNAL_SERVER_ERROR"
	codeUnauth     = "UNAUTHORIZED"
)
