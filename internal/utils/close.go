package utils

import (
	"io"

	"github.com/MrSnakeDoc/orderfiles/internal/logger"
)

// Close closes c and ignores any error.
// Use for response bodies and other best-effort cleanup in defer.
func Close(c io.Closer) {
	_ = c.Close()
}

// CloseLogged closes c and logs a failure under the given resource name.
// Use for long lived resources where a failed close is worth knowing about.
func CloseLogged(c io.Closer, log logger.Logger, resource string) {
	if err := c.Close(); err != nil {
		log.Warn("failed to close",
			logger.String("resource", resource),
			logger.Error(err))
	}
}
