package scheduler

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MrSnakeDoc/orderfiles/internal/logger"
)

const (
	// DefaultGCThreshold is the age after which an abandoned part file is deleted
	DefaultGCThreshold = 24 * time.Hour

	partSuffix = ".part"
)

// GarbageCollector removes download part files left behind by a worker that
// died mid transfer. Finished downloads are never touched.
type GarbageCollector struct {
	root      string
	logger    logger.Logger
	interval  time.Duration
	threshold time.Duration
	now       func() time.Time
	stopCh    chan struct{}
}

// NewGarbageCollector sweeps <baseDir>/OrderFiles every interval.
func NewGarbageCollector(
	baseDir string,
	log logger.Logger,
	interval time.Duration,
	threshold time.Duration,
) *GarbageCollector {
	if threshold == 0 {
		threshold = DefaultGCThreshold
	}

	return &GarbageCollector{
		root:      filepath.Join(baseDir, SubsystemDir),
		logger:    log,
		interval:  interval,
		threshold: threshold,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic garbage collection process
func (gc *GarbageCollector) Start(ctx context.Context) error {
	// Run immediately on start
	if err := gc.Collect(ctx); err != nil {
		gc.logger.Warn("initial part file collection failed",
			logger.Error(err))
	}

	ticker := time.NewTicker(gc.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := gc.Collect(ctx); err != nil {
					gc.logger.Error("part file collection failed",
						logger.Error(err))
				}
			case <-gc.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the garbage collector
func (gc *GarbageCollector) Stop() {
	close(gc.stopCh)
}

// Collect deletes part files older than the threshold. A missing root is not
// an error, nothing has been downloaded yet.
func (gc *GarbageCollector) Collect(ctx context.Context) error {
	now := gc.now()
	deleted := 0

	err := filepath.WalkDir(gc.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), partSuffix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// removed concurrently, by a finishing download or a rename
			return nil
		}
		age := now.Sub(info.ModTime())
		if age < gc.threshold {
			return nil
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			gc.logger.Warn("failed to delete part file",
				logger.String("path", path),
				logger.Error(err))
			return nil
		}

		gc.logger.Info("garbage collected part file",
			logger.String("path", path),
			logger.String("age", age.String()))
		deleted++
		return nil
	})

	if deleted > 0 {
		gc.logger.Info("part file collection completed",
			logger.Int("deleted", deleted))
	} else {
		gc.logger.Debug("no part files to garbage collect")
	}

	return err
}
