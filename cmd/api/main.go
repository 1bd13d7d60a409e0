package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"registrar/internal/config"
	"registrar/internal/handler"
	"registrar/internal/httpmiddleware"
	"registrar/internal/logging"
	"registrar/internal/metrics"
	"registrar/internal/photo"
	"registrar/internal/registration"
	"registrar/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, cfgErr := config.Load()
	log, err := logging.New(cfg.Production())
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	if cfgErr != nil {
		log.Fatal("load config", zap.Error(cfgErr))
	}

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		cancel()
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn("store close", zap.Error(err))
		}
	}()
	if err := st.Init(ctx); err != nil {
		cancel()
		return err
	}
	cancel()
	log.Info("store ready", zap.String("backend", cfg.StoreBackend))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	photos := photo.NewStore(cfg.UploadDir, cfg.MaxUploadBytes)
	svc := registration.NewService(st, photos, log)
	h := handler.New(svc, photos, st, m, log, handler.Admin{
		Password:   cfg.AdminPassword,
		Issuer:     cfg.JWTIssuer,
		SigningKey: cfg.JWTSigningKey,
		TTL:        cfg.AccessTTL,
	}, cfg.PublicDir)
	if cfg.AdminProtected() {
		log.Info("admin API requires bearer token")
	}

	r := gin.New()
	r.MaxMultipartMemory = cfg.MaxUploadBytes + (1 << 20)

	// Recovery middleware
	r.Use(gin.Recovery())
	r.Use(logging.Requests(log, "/healthz", "/metrics"))
	r.Use(m.Instrument())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:   []string{"Content-Disposition"},
		MaxAge:          24 * time.Hour,
	}))
	r.Use(securityHeaders())

	limiter := httpmiddleware.NewSubmissionLimiter(cfg.RateLimitPerMin, m.RateLimited)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	h.Routes(r, limiter.Handler())

	// No WriteTimeout: archive downloads stream for as long as they take.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server running", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	log.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
