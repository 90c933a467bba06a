package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clearpolicy/clearpolicy/backend/go-services/handlers"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/backend"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/clearpolicy"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/config"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/policy"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/storage"
	"github.com/clearpolicy/clearpolicy/backend/go-services/internal/store"
	"github.com/clearpolicy/clearpolicy/backend/go-services/pkg/logger"
	"github.com/clearpolicy/clearpolicy/backend/go-services/pkg/metrics"
	"github.com/clearpolicy/clearpolicy/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

var startTime = time.Now()

// deps are the runtime pieces the router needs besides the service.
type deps struct {
	store    store.Store
	limiter  *redis.Client
	blobs    bool
	gatherer prometheus.Gatherer
}

// setupLogging applies LOG_LEVEL and LOG_FORMAT (json|console).
func setupLogging(cfg *config.Config, out io.Writer) {
	logger.Init(cfg.LogLevel)
	if cfg.LogFormat == "console" {
		logger.Pretty(out)
	}
}

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	setupLogging(cfg, os.Stdout)
	logger.Infof("config loaded: mock=%v store=%s api_base=%q", cfg.Mode.Mock, cfg.Store.Backend, cfg.Mode.APIBaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatalf("clearpolicy: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	st, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warnf("closing store: %v", err)
		}
	}()

	var blobs policy.BlobStore
	if cfg.MinIO.Endpoint != "" {
		mc, err := storage.NewMinIOStorage(ctx, cfg.MinIO)
		if err != nil {
			logger.Warnf("minio unavailable, uploaded files will not be kept: %v", err)
		} else {
			logger.Infof("storing uploaded files in bucket %s", mc.Bucket())
			blobs = mc
		}
	}

	var limiter *redis.Client
	if cfg.RateLimit.Enabled && cfg.RateLimit.UseRedis && cfg.Redis.Host != "" {
		limiter = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := limiter.Ping(ctx).Err(); err != nil {
			logger.Warnf("rate limiter redis %s unreachable, using in-memory limiter: %v", cfg.Redis.Addr(), err)
			_ = limiter.Close()
			limiter = nil
		} else {
			defer limiter.Close()
		}
	}

	svc := clearpolicy.New(clearpolicy.Options{
		Mode:            clearpolicy.ModeFromFlag(cfg.Mode.Mock),
		Store:           st,
		Backend:         backend.NewClient(cfg.Mode.APIBaseURL, nil),
		Blobs:           blobs,
		IndexingDelay:   cfg.Simulation.IndexingDelay,
		AuditMaxEntries: cfg.Simulation.AuditMaxEntries,
	})
	defer svc.Close()

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r := newRouter(cfg, svc, deps{store: st, limiter: limiter, blobs: blobs != nil, gatherer: prometheus.DefaultGatherer})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("starting clearpolicy service on %s (mode=%s)", srv.Addr, svc.Mode())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newRouter(cfg *config.Config, svc *clearpolicy.Service, d deps) *gin.Engine {
	r := gin.New()

	// CORS for the browser frontend
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Disposition")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})
	r.Use(gin.Logger(), gin.Recovery())

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && d.limiter != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(d.limiter, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// ready once the store answers; delegated mode also needs a backend URL
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		status := map[string]bool{}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		_, err := d.store.Get(ctx, store.KeyAudit)
		status["store"] = err == nil
		if err != nil {
			logger.Warnf("readiness: store check failed: %v", err)
			ready = false
		}

		if !svc.IsMockMode() {
			status["backend"] = cfg.Mode.APIBaseURL != ""
			if !status["backend"] {
				ready = false
			}
		}
		status["blobs"] = d.blobs

		body := gin.H{"deps": status, "mock": svc.IsMockMode(), "uptime": time.Since(startTime).String()}
		if !ready {
			body["status"] = "not_ready"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["status"] = "ready"
		c.JSON(http.StatusOK, body)
	})

	handlers.RegisterSwagger(r)
	handlers.NewAPI(svc).Register(r)

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{})))
	return r
}
