package server

import (
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"go.uber.org/zap"
)

// handleBackendProxy passes /backend/* straight through to the LVS backend,
// for backend endpoints the gateway does not wrap.
func (s *Server) handleBackendProxy(w http.ResponseWriter, r *http.Request) {
	log := s.logger.WithRequestID(getRequestID(r.Context()))
	target := s.backend.BaseURL()

	r.URL.Path = strings.TrimPrefix(r.URL.Path, "/backend")
	if r.URL.Path == "" {
		r.URL.Path = "/"
	}
	r.URL.RawPath = ""

	proxy := httputil.NewSingleHostReverseProxy(target)
	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		req.Host = target.Host
		if !s.config.Backend.ForwardAuth {
			req.Header.Del("Authorization")
		}
		if _, ok := req.Header["User-Agent"]; !ok {
			req.Header.Set("User-Agent", "lvs-console/"+Version)
		}

		log.Debug("Proxying request",
			zap.String("target_url", req.URL.String()),
			zap.String("method", req.Method),
		)
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error("Proxy error", zap.Error(err))
		writeError(w, http.StatusBadGateway, "backend unavailable")
	}

	start := time.Now()
	proxy.ServeHTTP(w, r)

	log.Debug("Request proxied",
		zap.String("path", r.URL.Path),
		zap.Duration("upstream_duration", time.Since(start)),
	)
}
