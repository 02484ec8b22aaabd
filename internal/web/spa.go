// Package web serves the built front-end bundle.
package web

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// SPA serves files from a static directory and falls back to index.html for
// unknown paths so client-side routes load the app.
type SPA struct {
	dir string
}

// NewSPA serves the bundle under dir
func NewSPA(dir string) *SPA {
	return &SPA{dir: dir}
}

func (s *SPA) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	clean := path.Clean("/" + r.URL.Path)
	file := filepath.Join(s.dir, filepath.FromSlash(clean))

	// http.ServeFile refuses raw paths containing ".."
	u := *r.URL
	u.Path = clean
	r = r.WithContext(r.Context())
	r.URL = &u

	if info, err := os.Stat(file); err == nil && !info.IsDir() {
		if strings.HasPrefix(clean, "/assets/") {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		}
		http.ServeFile(w, r, file)
		return
	}

	s.serveIndex(w, r)
}

func (s *SPA) serveIndex(w http.ResponseWriter, r *http.Request) {
	index := filepath.Join(s.dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	http.ServeFile(w, r, index)
}
