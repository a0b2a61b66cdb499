package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/MrSnakeDoc/orderfiles/internal/config"
	"github.com/MrSnakeDoc/orderfiles/internal/fetcher"
	"github.com/MrSnakeDoc/orderfiles/internal/httpserver"
	"github.com/MrSnakeDoc/orderfiles/internal/httpserver/deps"
	"github.com/MrSnakeDoc/orderfiles/internal/logger"
	"github.com/MrSnakeDoc/orderfiles/internal/redis"
	"github.com/MrSnakeDoc/orderfiles/internal/scheduler"
	"github.com/MrSnakeDoc/orderfiles/internal/store/postgres"
	"github.com/MrSnakeDoc/orderfiles/internal/version"
	"github.com/MrSnakeDoc/orderfiles/internal/wake"
)

// Role selects which half of the pipeline a process runs.
type Role string

const (
	RoleAPI    Role = "api"    // order intake over HTTP
	RoleWorker Role = "worker" // file link downloads
)

const startupTimeout = 30 * time.Second

type App struct {
	role        Role
	cfg         *config.Config
	logger      logger.Logger
	repo        *postgres.Repository
	redisClient *goredis.Client
	server      *httpserver.Server
	worker      *scheduler.OrderFiles
	gc          *scheduler.GarbageCollector
}

// New wires the process for role. Like every startup failure, an unreachable
// database or Redis logs and exits.
func New(role Role) *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog).With(logger.String("role", string(role)))

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	repo, err := postgres.NewRepository(ctx, cfg.DatabaseURL, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to connect to database: %v", err)
		os.Exit(1)
	}
	if err := repo.InitializeSchema(ctx); err != nil {
		loggerClient.Errorf("Failed to initialize database schema: %v", err)
		os.Exit(1)
	}
	loggerClient.Info("database initialized successfully")

	a := &App{role: role, cfg: cfg, logger: loggerClient, repo: repo}

	sig := a.newSignal(ctx)

	switch role {
	case RoleAPI:
		a.server = httpserver.New(cfg, loggerClient, a.apiDeps(sig))
	case RoleWorker:
		a.worker = a.newWorker(sig)
		a.gc = scheduler.NewGarbageCollector(cfg.BaseDir, loggerClient, cfg.PartGCInterval, cfg.PartGCThreshold)
	default:
		loggerClient.Errorf("unknown role %q", role)
		os.Exit(1)
	}

	return a
}

// newSignal returns the wake signal shared with the other process.
func (a *App) newSignal(ctx context.Context) wake.Signal {
	if a.cfg.SignalBackend == config.SignalBackendNone {
		a.logger.Warn("no cross-process wake signal configured, the worker only polls on its signal timeout",
			logger.Duration("signal_timeout", a.cfg.SignalTimeout))
		return wake.NewLocal()
	}

	client, err := redis.New(ctx, redis.ConnectOptions{
		Addr:           a.cfg.RedisAddr,
		User:           a.cfg.RedisUser,
		Password:       a.cfg.RedisPassword,
		RedisDB:        a.cfg.RedisDB,
		DialTimeout:    a.cfg.RedisDT,
		ReadTimeout:    a.cfg.RedisRT,
		WriteTimeout:   a.cfg.RedisWT,
		PoolSize:       a.cfg.RedisPoolSize,
		ConnectTimeout: a.cfg.RedisConnectTimeout,
		RetryInterval:  a.cfg.RedisRetryInterval,
		MaxWait:        a.cfg.RedisMaxWait,
		PingTimeout:    a.cfg.RedisPingTimeout,
		WarnThreshold:  a.cfg.RedisWarnThreshold,
	}, a.logger)
	if err != nil {
		a.logger.Errorf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	a.redisClient = client

	a.logger.Info("wake signal on redis", logger.String("key", a.cfg.SignalKey))
	return wake.NewRedis(client, a.cfg.SignalKey)
}

func (a *App) apiDeps(sig wake.Signal) deps.Deps {
	checks := []deps.Check{{Name: "postgres", Ping: a.repo.Ping}}
	if a.redisClient != nil {
		client := a.redisClient
		checks = append(checks, deps.Check{
			Name: "redis",
			Ping: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
	}

	return deps.Deps{
		Logger:          a.logger,
		StartTime:       time.Now(),
		Version:         version.Version,
		Commit:          version.Commit,
		BuildDate:       version.BuildDate,
		GoVersion:       version.GoVersion,
		Orders:          a.repo,
		Notifier:        wake.NewNotifier(sig, a.logger),
		Checks:          checks,
		ReadyzCIDRs:     a.cfg.ReadyzCIDRs,
		TrustProxy:      a.cfg.TrustProxy,
		IntakeBurst:     a.cfg.IntakeBurst,
		IntakeRefillMin: a.cfg.IntakeRefillPerMin,
	}
}

func (a *App) newWorker(sig wake.Signal) *scheduler.OrderFiles {
	f, err := fetcher.New(
		&http.Client{Timeout: a.cfg.HTTPClientTimeout},
		a.cfg.BaseDir,
		fetcher.WithLogger(a.logger),
	)
	if err != nil {
		a.logger.Errorf("Failed to prepare downloads directory: %v", err)
		os.Exit(1)
	}

	return scheduler.NewOrderFiles(
		a.repo,
		f,
		wake.NewWaiter(sig, a.cfg.SignalTimeout, a.logger),
		scheduler.OrderFilesConfig{
			BaseDir:        f.BaseDir(),
			MaxParallelism: a.cfg.MaxParallelism,
		},
		a.logger,
	)
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting orderfiles %s %s", a.role, version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)

	if a.server != nil {
		go func() {
			if err := a.server.Start(); err != nil {
				errCh <- fmt.Errorf("http server error: %w", err)
			}
		}()
	}

	if a.worker != nil {
		if err := a.worker.Start(ctx); err != nil {
			return fmt.Errorf("failed to start order files worker: %w", err)
		}
	}

	if a.gc != nil {
		if err := a.gc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start part file collector: %w", err)
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	return multierr.Append(runErr, a.shutdown())
}

// shutdown stops everything that was started and closes connections, in
// reverse order of creation.
func (a *App) shutdown() error {
	var err error

	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if serr := a.server.Stop(shutdownCtx); serr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to stop server: %w", serr))
		}
	}

	if a.gc != nil {
		a.gc.Stop()
	}
	if a.worker != nil {
		a.worker.Stop()
	}

	if a.redisClient != nil {
		if cerr := a.redisClient.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to close redis: %w", cerr))
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	if cerr := a.repo.Close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("failed to close database: %w", cerr))
	}

	if err == nil {
		a.logger.Info("✅ orderfiles stopped cleanly")
	}
	_ = a.logger.Sync()
	return err
}
