package api

import (
	"net/http"
	"time"

	"github.com/church-space/church-space-sub003/internal/pkg/httputil"
)

var startTime = time.Now()

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{
		"status": "healthy",
		"uptime": time.Since(startTime).Round(time.Second).String(),
	})
}
