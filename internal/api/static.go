package api

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/yegors/voice-agent/pkg/logger"
)

// StaticFileHandler serves widget assets. Files in the optional override
// directory win over the embedded defaults, so stylesheets can be customized
// without a rebuild.
type StaticFileHandler struct {
	staticDir string
	embedded  fs.FS
	logger    *logger.Logger
}

// NewStaticFileHandler creates a new static file handler
func NewStaticFileHandler(staticDir string, embedded fs.FS, logger *logger.Logger) *StaticFileHandler {
	return &StaticFileHandler{
		staticDir: staticDir,
		embedded:  embedded,
		logger:    logger.Named("static-handler"),
	}
}

// ServeHTTP serves the requested asset
func (h *StaticFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Clean the path to prevent directory traversal attacks
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" || name == "." {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")

	if h.staticDir != "" {
		if fullPath, ok := h.overridePath(name); ok {
			h.logger.Debug("Serving static file from override directory",
				logger.String("requested_path", r.URL.Path),
				logger.String("file_path", fullPath))
			http.ServeFile(w, r, fullPath)
			return
		}
	}

	if h.embedded == nil {
		http.NotFound(w, r)
		return
	}
	info, err := fs.Stat(h.embedded, name)
	if err != nil || info.IsDir() {
		h.logger.Debug("File not found", logger.String("path", name))
		http.NotFound(w, r)
		return
	}
	http.ServeFileFS(w, r, h.embedded, name)
}

// overridePath resolves name inside the override directory. It reports false
// for missing files, directories and anything outside the directory.
func (h *StaticFileHandler) overridePath(name string) (string, bool) {
	absStaticDir, err := filepath.Abs(h.staticDir)
	if err != nil {
		h.logger.Error("Failed to get absolute path for static directory", logger.Error(err))
		return "", false
	}

	absFullPath, err := filepath.Abs(filepath.Join(absStaticDir, filepath.FromSlash(name)))
	if err != nil {
		return "", false
	}

	if !strings.HasPrefix(absFullPath, absStaticDir+string(filepath.Separator)) {
		h.logger.Warn("Attempted directory traversal attack",
			logger.String("requested_path", name),
			logger.String("full_path", absFullPath),
			logger.String("static_dir", absStaticDir))
		return "", false
	}

	info, err := os.Stat(absFullPath)
	if err != nil || info.IsDir() {
		return "", false
	}
	return absFullPath, true
}
