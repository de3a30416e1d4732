package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"pricehub/internal/app"
	"pricehub/internal/auth"
	"pricehub/internal/config"
	"pricehub/internal/events"
	"pricehub/internal/ingest"
	"pricehub/internal/logger"
	"pricehub/internal/prices"
	"pricehub/internal/runs"
	"pricehub/pkg/database"
	"pricehub/pkg/utils"
)

func main() {
	srvCfg := utils.LoadServerConfig()
	cfg := database.DefaultConfig()
	db := database.MustOpen(cfg)
	defer db.Close()

	if err := database.Migrate(db, cfg.Driver); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := events.NewHub()
	go hub.Run(ctx)

	// Triggering needs the ingest config; without it the API is read-only.
	var trigger *ingest.Trigger
	ingestCfg, err := config.LoadConfig(srvCfg.IngestConfig)
	if err != nil {
		log.Printf("run trigger disabled: %v", err)
	} else {
		eng, err := app.Build(ctx, app.Deps{
			Config:    ingestCfg,
			DB:        db,
			DBConfig:  cfg,
			Logger:    logger.New(ingestCfg.Logging.Level),
			Publisher: hub,
		})
		if err != nil {
			log.Fatalf("ingest setup failed: %v", err)
		}
		defer eng.Close()
		trigger = ingest.NewTrigger(ctx, eng.Engine, app.CatalogLoader(ingestCfg.Ingest.Catalog))
	}

	router := gin.Default()
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/ws", events.WSHandler(hub))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "driver": cfg.Driver})
	})

	router.GET("/ready", func(c *gin.Context) {
		stats := hub.Stats()
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(pingCtx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "not_ready",
				"db_error": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":      "ready",
			"db":          "ok",
			"tcp_clients": stats.TCPClients,
			"ws_clients":  stats.WSClients,
			"dropped":     stats.Dropped,
		})
	})

	// Prices (public)
	priceHandler := prices.NewHandler(prices.NewRepo(db, cfg.Driver))
	priceHandler.RegisterRoutes(router.Group("/prices"))

	// Auth
	authCfg := utils.LoadAuthConfig()
	tokenSvc := auth.TokenService{
		Secret:   []byte(authCfg.JWTSecret),
		Issuer:   authCfg.JWTIssuer,
		Duration: authCfg.JWTDuration,
	}
	op := auth.Operator{Username: authCfg.OperatorUser, PasswordHash: authCfg.OperatorPasswordHash}
	if !op.Enabled() {
		log.Println("operator login disabled: PRICEHUB_OPERATOR_PASSWORD_HASH not set")
	}
	auth.NewHandler(op, tokenSvc).RegisterRoutes(router.Group("/auth"))

	// Runs: reads are public, triggering is operator-only
	runHandler := runs.NewHandler(runs.NewRepo(db, cfg.Driver), trigger)
	runGroup := router.Group("/runs")
	runHandler.RegisterRoutes(runGroup)
	protected := runGroup.Group("")
	protected.Use(auth.AuthMiddleware(tokenSvc))
	runHandler.RegisterTrigger(protected)

	httpSrv := &http.Server{
		Addr:    srvCfg.HTTPAddr,
		Handler: router,
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	if srvCfg.EventsAddr != "" {
		tcpSrv := events.NewServer(srvCfg.EventsAddr, hub)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tcpSrv.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("HTTP API server listening on %s", srvCfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received")
	case err := <-errCh:
		log.Printf("server error: %v", err)
	}
	stop()

	log.Println("shutting down servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	if trigger != nil {
		// an in-flight run sees the cancelled context and records itself
		trigger.Wait()
	}

	wg.Wait()
	log.Println("servers stopped")
}
