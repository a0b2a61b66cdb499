package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/MrSnakeDoc/orderfiles/internal/httpserver/deps"
	"github.com/MrSnakeDoc/orderfiles/internal/logger"
)

const defaultCheckTimeout = 2 * time.Second

type componentStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type readyzResponse struct {
	Ready      bool                       `json:"ready"`
	Components map[string]componentStatus `json:"components"`
}

// Readyz pings every dependency concurrently and answers 503 when any of
// them fails.
func Readyz(d deps.Deps) http.HandlerFunc {
	timeout := d.CheckTimeout
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		resp := readyzResponse{Ready: true, Components: make(map[string]componentStatus, len(d.Checks))}

		var (
			mu sync.Mutex
			wg sync.WaitGroup
		)
		for _, c := range d.Checks {
			wg.Add(1)
			go func() {
				defer wg.Done()
				status := componentStatus{OK: true}
				if err := c.Ping(ctx); err != nil {
					status = componentStatus{Error: err.Error()}
					d.Logger.Warn("readiness check failed",
						logger.String("component", c.Name),
						logger.Error(err))
				}
				mu.Lock()
				resp.Components[c.Name] = status
				resp.Ready = resp.Ready && status.OK
				mu.Unlock()
			}()
		}
		wg.Wait()

		code := http.StatusOK
		if !resp.Ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
