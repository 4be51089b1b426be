package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ara818/autocompleter/internal/autocomplete"
	"github.com/ara818/autocompleter/internal/config"
	"github.com/ara818/autocompleter/internal/fixture"
	"github.com/ara818/autocompleter/internal/http/handler"
	mw "github.com/ara818/autocompleter/internal/http/middleware"
	redisx "github.com/ara818/autocompleter/internal/redis"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var configPath string

func init() {
	// Handle version display
	handleVersion()
}

func main() {
	// Read env
	isDev := os.Getenv("ENV") == "dev"

	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Create Zap logger
	log := buildLogger()
	defer log.Sync()
	log = log.Named("main")

	// Create Gin router
	if !isDev {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = zap.NewStdLog(log.Named("gin")).Writer() // Configure Gin's logger to use Zap
	r := gin.New()

	// Build the engine
	rdb := redisx.NewClient(cfg.RedisAddr, cfg.RedisDB, log)
	defer rdb.Close()

	registry, err := buildRegistry(cfg)
	if err != nil {
		log.Fatal("registry creation failed", zap.Error(err))
	}
	engine := autocomplete.NewEngine(log, rdb.Client, registry, cfg.KeyRoot)

	// Apply Gin middlewares
	{
		r.Use(gin.Recovery()) // Recovery first (outermost)
		r.Use(mw.RequestID()) // Attach request ID for tracing; early in the chain so it's available everywhere

		if isDev { // Enable CORS for local frontend dev
			r.Use(cors.New(cors.Config{
				AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000", "http://127.0.0.1:3000"},
				AllowMethods:     []string{"GET", "OPTIONS"},
				AllowHeaders:     []string{"X-Request-ID", "Content-Type"},
				ExposeHeaders:    []string{"X-Request-ID"},
				AllowCredentials: true,
				MaxAge:           12 * time.Hour,
			}))
		} else { // Behind a TLS-terminating proxy
			r.SetTrustedProxies([]string{"127.0.0.1"})
			r.Use(secure.New(secure.Config{
				SSLProxyHeaders: map[string]string{
					"X-Forwarded-Proto": "https",
				},
			}))
		}

		r.Use(accessLog(log)) // Observability (logger, tracing)

		r.Use(mw.LimitConcurrentRequests(256)) // Bound in-flight Redis fan-out

		r.Use(func(c *gin.Context) {
			// Suggest is a read-only GET surface; 1MB is generous.
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
			c.Next()
		})
	}

	// Register route handlers
	{
		r.GET("/api/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

		sgsthndlr := handler.NewSuggestHandler(log, engine)
		r.GET("/api/suggest/:name", sgsthndlr.Suggest)
		r.GET("/api/exact_suggest/:name", sgsthndlr.ExactSuggest)
		r.GET("/api/item/:provider/:id", sgsthndlr.Item)
	}

	httpsrv := &http.Server{
		Addr:              cfg.Addr + ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 2 * time.Second,  // kills header-drip Slowloris
		ReadTimeout:       10 * time.Second, // full request read (incl. body)
		WriteTimeout:      15 * time.Second, // avoid forever-hangs on writes
		IdleTimeout:       60 * time.Second, // keep-alive cap
		MaxHeaderBytes:    1 << 20,          // 1MB cap
	}

	log.Info("running HTTP server", zap.String("addr", httpsrv.Addr))
	if err := httpsrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server failed", zap.Error(err))
	}
	log.Info("server closed")
}

// buildRegistry assembles the provider registry from the config file:
// global settings, per-provider overrides, and fixture-backed providers
// per autocompleter.
func buildRegistry(cfg *config.Config) (*autocomplete.Registry, error) {
	global, err := cfg.GlobalSettings()
	if err != nil {
		return nil, err
	}
	registry, err := autocomplete.NewRegistry(global)
	if err != nil {
		return nil, err
	}

	for providerName, oc := range cfg.Providers {
		o, err := oc.Override()
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", providerName, err)
		}
		registry.SetProviderOverride(providerName, o)
	}

	for name, paths := range cfg.Fixtures {
		providers, err := fixture.LoadAll(paths)
		if err != nil {
			return nil, fmt.Errorf("autocompleter %s: %w", name, err)
		}
		for _, p := range providers {
			registry.Register(name, p)
		}
	}
	return registry, nil
}

// handleVersion prints build metadata and exits when -v/--version is provided.
func handleVersion() {
	v := flag.Bool("v", false, "print version and exit")
	flag.BoolVar(v, "version", false, "print version and exit")
	flag.StringVar(&configPath, "config", "acserver.yaml", "path to config file")
	flag.Parse()

	if *v {
		fmt.Printf("acserver %s (commit %s, built %s)\n", config.Version, config.GitCommit, config.BuildDate)
		os.Exit(0)
	}
}

// accessLog is a Gin middleware that records HTTP request/response details with Zap after handling.
func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		// collect all errors from Gin context
		var errs []error
		for _, ge := range c.Errors {
			if ge.Err != nil {
				errs = append(errs, ge.Err)
			}
		}
		// errors.Join returns nil if errs is empty
		joinedErr := errors.Join(errs...)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Duration("latency", latency),
			zap.String("request_id", mw.GetRequestID(c)),
		}
		if joinedErr != nil {
			fields = append(fields, zap.Error(joinedErr))
		}

		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// helpers

func buildLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	logConfig.Level.SetLevel(zap.DebugLevel)
	return zap.Must(logConfig.Build())
}
