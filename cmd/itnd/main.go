package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/instatrade/itn/internal/external"
	"github.com/instatrade/itn/internal/orchestrator"
	"github.com/instatrade/itn/pkg/log"
	"github.com/instatrade/itn/pkg/metric"
	"github.com/instatrade/itn/pkg/seal"
)

var (
	port       = flag.String("port", "8080", "HTTP server port")
	env        = flag.String("env", "development", "Environment (development/production)")
	logLevel   = flag.String("log-level", "info", "Log level (debug/info/warn/error)")
	secretSeed = flag.String("secret-seed", "", "Operator passphrase for the decision-ledger signing secret; a fresh random one is generated if empty")
)

func main() {
	flag.Parse()

	logger := log.NewNamed("itnd", *logLevel)
	defer logger.Sync()

	secret, err := buildSecret(*secretSeed)
	if err != nil {
		logger.Fatal("failed to derive ledger signing secret", log.Err(err))
	}

	metrics := metric.New()
	compliance := external.NewInMemoryCompliance()
	fraudHistory := external.NewInMemoryFraudHistory()
	fxProvider := external.NewFXProvider()
	transport := external.NewSimulatedTransport(nil)

	orc := orchestrator.NewOrchestrator(orchestrator.Config{
		Secret:        secret,
		Compliance:    compliance,
		FraudHist:     fraudHistory,
		FXProvider:    fxProvider,
		AuctionJitter: defaultJitter,
		Transport:     transport,
		Metrics:       metrics,
		Logger:        logger,
	})

	if *env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = []string{"http://localhost:3000"}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(c *gin.Context) {
		snap := orc.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"status":             "healthy",
			"ledger_passed":      snap.LedgerPassed,
			"ledger_total":       snap.LedgerTotal,
			"ledger_integrity":   snap.LedgerIntegrityOK,
			"balance_variance":   snap.BalanceVariance.String(),
			"competition_rate":   snap.CompetitionRate.String(),
			"health_score":       snap.HealthScore.String(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Gatherer(), promhttp.HandlerOpts{})))

	registerAPIRoutes(r, orc)

	srv := &http.Server{
		Addr:    ":" + *port,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", log.Err(err))
		}
	}()
	logger.Info("itnd started", log.String("port", *port), log.String("env", *env))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("forced shutdown", log.Err(err))
	}
	logger.Info("server exited")
}

func buildSecret(seed string) (*seal.Secret, error) {
	if seed == "" {
		return seal.GenerateSecret()
	}
	return seal.DeriveSecret([]byte(seed), nil)
}
