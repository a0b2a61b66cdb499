package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/orderfiles/internal/domain"
	"github.com/MrSnakeDoc/orderfiles/internal/filename"
	"github.com/MrSnakeDoc/orderfiles/internal/logger"
	"github.com/MrSnakeDoc/orderfiles/internal/resilience"
)

// SubsystemDir is the directory under the base directory that holds every
// downloaded order file.
const SubsystemDir = "OrderFiles"

// markTimeout bounds recording a finished download once the loop is
// shutting down.
const markTimeout = 5 * time.Second

// waitErrorDelay keeps a failing waiter from turning the loop into a busy
// poll of the queue.
const waitErrorDelay = 2 * time.Second

// LinkQueue is the durable side of the worker.
type LinkQueue interface {
	UnprocessedFileLinks(ctx context.Context) ([]domain.FileLink, error)
	ProcessFileLink(ctx context.Context, id int64) error
}

// Saver downloads one link into a directory.
type Saver interface {
	Save(ctx context.Context, link domain.FileLink, destinationPath string) domain.SaveResult
}

// Waiter blocks until there may be new work. It only fails on cancellation.
type Waiter interface {
	Wait(ctx context.Context) error
}

// OrderFilesConfig holds the tunables of the worker loop.
type OrderFilesConfig struct {
	BaseDir        string
	MaxParallelism int
}

// OrderFiles downloads pending file links whenever it is woken up, with at
// most MaxParallelism downloads in flight.
type OrderFiles struct {
	queue   LinkQueue
	saver   Saver
	waiter  Waiter
	baseDir string
	limit   int
	logger  logger.Logger

	waitErrDelay time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOrderFiles creates the worker loop.
func NewOrderFiles(
	queue LinkQueue,
	saver Saver,
	waiter Waiter,
	cfg OrderFilesConfig,
	log logger.Logger,
) *OrderFiles {
	limit := cfg.MaxParallelism
	if limit < 1 {
		limit = 1
	}
	return &OrderFiles{
		queue:   queue,
		saver:   saver,
		waiter:  waiter,
		baseDir: cfg.BaseDir,
		limit:   limit,
		logger:  log,

		waitErrDelay: waitErrorDelay,
	}
}

// Start runs the loop in the background until ctx is cancelled or Stop is
// called.
func (of *OrderFiles) Start(ctx context.Context) error {
	of.mu.Lock()
	defer of.mu.Unlock()
	if of.done != nil {
		return errors.New("order files worker already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	of.cancel = cancel
	of.done = make(chan struct{})

	go func() {
		defer close(of.done)
		of.Run(ctx)
	}()

	of.logger.Info("order files worker started",
		logger.String("base_dir", of.baseDir),
		logger.Int("max_parallelism", of.limit))
	return nil
}

// Stop cancels the loop and waits for in-flight downloads to wind down.
func (of *OrderFiles) Stop() {
	of.mu.Lock()
	cancel, done := of.cancel, of.done
	of.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	of.logger.Info("order files worker stopped")
}

// Run loops until ctx is cancelled. The first cycle starts without waiting
// so work queued while the worker was down is picked up right away.
func (of *OrderFiles) Run(ctx context.Context) {
	first := true
	for ctx.Err() == nil {
		if !first {
			if err := of.waiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				of.logger.Warn("wait for signal failed, polling anyway", logger.Error(err))
				if resilience.Sleep(ctx, of.waitErrDelay) != nil {
					return
				}
			}
		}
		first = false

		if err := of.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			of.logger.Error("order files cycle failed", logger.Error(err))
		}
	}
}

// RunCycle loads every pending link and downloads them concurrently. Failed
// links stay pending; only failures to reach the queue are returned.
func (of *OrderFiles) RunCycle(ctx context.Context) error {
	links, err := of.queue.UnprocessedFileLinks(ctx)
	if err != nil {
		return fmt.Errorf("load pending links: %w", err)
	}
	if len(links) == 0 {
		of.logger.Debug("no pending file links")
		return nil
	}

	of.logger.Info("processing pending file links", logger.Int("count", len(links)))

	var g errgroup.Group
	g.SetLimit(of.limit)

	var (
		statsMu   sync.Mutex
		processed int
	)

	for _, link := range links {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if of.process(ctx, link) {
				statsMu.Lock()
				processed++
				statsMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	of.logger.Info("file link cycle finished",
		logger.Int("processed", processed),
		logger.Int("pending", len(links)-processed))

	return ctx.Err()
}

// process downloads one link and marks it processed on success.
func (of *OrderFiles) process(ctx context.Context, link domain.FileLink) bool {
	if ctx.Err() != nil {
		return false
	}

	log := of.logger.With(
		logger.Int64("file_link_id", link.ID),
		logger.Int64("order_id", link.OrderID),
		logger.String("url", link.URL))

	result := of.saver.Save(ctx, link, of.Destination(link))
	if !result.Succeeded() {
		log.Warn("file download failed, link stays pending",
			logger.String("error", result.ErrorMessage))
		return false
	}

	// the file is on disk, record it even if the loop is being stopped
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()

	if err := of.queue.ProcessFileLink(markCtx, link.ID); err != nil {
		log.Error("failed to mark file link processed", logger.Error(err))
		return false
	}

	log.Info("file downloaded", logger.String("path", result.LocalPath))
	return true
}

// Destination returns the directory a link is downloaded into:
// <base>/OrderFiles/<order id>/<brand>/<variant>.
func (of *OrderFiles) Destination(link domain.FileLink) string {
	return filepath.Join(
		of.baseDir,
		SubsystemDir,
		strconv.FormatInt(link.OrderID, 10),
		filename.Sanitize(link.Brand),
		filename.Sanitize(link.Variant),
	)
}
