package mw

import (
	"net/http"

	"github.com/MrSnakeDoc/orderfiles/internal/logger"
	"github.com/MrSnakeDoc/orderfiles/internal/utils"
)

// AllowOnly restricts a route to callers within the given CIDRs or IPs. An
// empty list lets everyone through.
func AllowOnly(allowed []string, trustProxy bool, log logger.Logger) func(http.Handler) http.Handler {
	list := utils.ParsePrefixList(allowed)
	if len(list) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := utils.ClientIP(r, trustProxy)
			if !list.Contains(ip) {
				log.Debug("caller not in allow list",
					logger.String("ip", ip),
					logger.String("path", r.URL.Path))
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
