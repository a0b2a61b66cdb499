package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/orderfiles/internal/domain"
	"github.com/MrSnakeDoc/orderfiles/internal/logger"
)

// Orders is the intake side of the durable queue.
type Orders interface {
	Add(ctx context.Context, order domain.Order) (int64, error)
	Order(ctx context.Context, id int64) (domain.Order, []domain.FileLink, error)
}

// Notifier wakes the worker after an order was stored. It never fails.
type Notifier interface {
	Notify(ctx context.Context)
}

// Check is one dependency probed by /readyz.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type Deps struct {
	Logger          logger.Logger
	StartTime       time.Time
	Version         string
	Commit          string
	BuildDate       string
	GoVersion       string
	Orders          Orders
	Notifier        Notifier
	Checks          []Check       // probed by /readyz
	CheckTimeout    time.Duration // per check, defaults to 2s
	ReadyzCIDRs     []string      // callers allowed on /readyz, empty allows all
	TrustProxy      bool          // resolve client IPs from proxy headers
	IntakeBurst     int           // POST /order burst per client, 0 disables the limiter
	IntakeRefillMin int           // POST /order tokens regained per minute
}
