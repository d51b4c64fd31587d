package handlers

import (
	"net/http"
	"os"

	"go.uber.org/zap"
)

// RegisterStatic serves dir at "/" when it exists. Returns false otherwise.
func RegisterStatic(mux *http.ServeMux, dir string, logger *zap.Logger) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		logger.Info("Static UI directory not found, skipping", zap.String("dir", dir))
		return false
	}
	mux.Handle("GET /", http.FileServer(http.Dir(dir)))
	return true
}
