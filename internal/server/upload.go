package server

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DefaultRecordingName is used when a browser recording arrives without a filename.
const DefaultRecordingName = "recording.wav"

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

// uploadName prefixes the client's base filename with a short random id.
func uploadName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	if base == "." || base == "/" || base == "" {
		base = DefaultRecordingName
	}
	return uuid.NewString()[:8] + "_" + base
}

// saveUpload stores fh under the upload directory and returns its path.
func (s *Server) saveUpload(c *gin.Context, fh *multipart.FileHeader, name string) (string, error) {
	dir := s.cfg.Storage.UploadDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := c.SaveUploadedFile(fh, path); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return path, nil
}

func (s *Server) uploadedFile(c *gin.Context) {
	name := filepath.Base(c.Param("filename"))
	path := filepath.Join(s.cfg.Storage.UploadDir, name)
	if _, err := os.Stat(path); err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	c.File(path)
}
