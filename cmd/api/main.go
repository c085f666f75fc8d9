package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakan-app/sakan-backend/internal/adapters/crdb"
	mongoadapter "github.com/sakan-app/sakan-backend/internal/adapters/mongo"
	"github.com/sakan-app/sakan-backend/internal/adapters/r2"
	redisadapter "github.com/sakan-app/sakan-backend/internal/adapters/redis"
	"github.com/sakan-app/sakan-backend/internal/booking"
	"github.com/sakan-app/sakan-backend/internal/config"
	"github.com/sakan-app/sakan-backend/internal/gateway/paymob"
	httphandler "github.com/sakan-app/sakan-backend/internal/http"
	"github.com/sakan-app/sakan-backend/internal/observability"
	"github.com/sakan-app/sakan-backend/internal/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	ledger := crdb.NewLedger(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("sakan")
	catalog := mongoadapter.NewListingCatalog(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	rl := ratelimit.NewRateLimiter(redisCache)

	gateway := paymob.New(paymob.Config{
		BaseURL:             cfg.PaymobBaseURL,
		APIKey:              cfg.PaymobAPIKey,
		IntegrationID:       cfg.PaymobIntegrationID,
		WalletIntegrationID: cfg.PaymobWalletIntegrationID,
		HMACSecret:          cfg.PaymobHMACSecret,
	})

	storage, err := r2.New(context.Background(), r2.Config{
		Endpoint:   cfg.R2Endpoint,
		AccessKey:  cfg.R2AccessKey,
		SecretKey:  cfg.R2SecretKey,
		Bucket:     cfg.R2Bucket,
		PublicBase: cfg.R2PublicBase,
	})
	if err != nil {
		log.Fatalf("failed to setup r2: %v", err)
	}

	svc := booking.NewService(ledger, gateway, redisCache, audit, logger, cfg.BookingTTL, cfg.PaymobIframeID)
	rec := booking.NewReconciler(ledger, gateway, audit, logger, cfg.BookingTTL)

	handlers := httphandler.NewHandlers(svc, rec, ledger, catalog, storage, logger)
	r := httphandler.SetupRouter(handlers, logger, rl, redisIdemp, cfg.JWTSecret)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
