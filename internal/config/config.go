package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr      string
	CRDBDSN   string
	MongoURI  string
	RedisAddr string
	RabbitURL string
	JWTSecret string

	BookingTTL    time.Duration
	SweepInterval time.Duration

	PaymobBaseURL             string
	PaymobAPIKey              string
	PaymobHMACSecret          string
	PaymobIntegrationID       string
	PaymobWalletIntegrationID string
	PaymobIframeID            string

	R2Endpoint   string
	R2AccessKey  string
	R2SecretKey  string
	R2Bucket     string
	R2PublicBase string

	OTLPEndpoint string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	bookingTTL, _ := time.ParseDuration(os.Getenv("BOOKING_TTL"))
	if bookingTTL == 0 {
		bookingTTL = 7 * 24 * time.Hour
	}
	sweepInterval, _ := time.ParseDuration(os.Getenv("SWEEP_INTERVAL"))
	if sweepInterval == 0 {
		sweepInterval = time.Hour
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	paymobBase := os.Getenv("PAYMOB_BASE_URL")
	if paymobBase == "" {
		paymobBase = "https://accept.paymob.com"
	}

	return &Config{
		Addr:      addr,
		CRDBDSN:   os.Getenv("CRDB_DSN"),
		MongoURI:  os.Getenv("MONGO_URI"),
		RedisAddr: os.Getenv("REDIS_ADDR"),
		RabbitURL: os.Getenv("RABBIT_URL"),
		JWTSecret: os.Getenv("JWT_SECRET"),

		BookingTTL:    bookingTTL,
		SweepInterval: sweepInterval,

		PaymobBaseURL:             paymobBase,
		PaymobAPIKey:              os.Getenv("PAYMOB_API_KEY"),
		PaymobHMACSecret:          os.Getenv("PAYMOB_HMAC_SECRET"),
		PaymobIntegrationID:       os.Getenv("PAYMOB_INTEGRATION_ID"),
		PaymobWalletIntegrationID: os.Getenv("PAYMOB_WALLET_INTEGRATION_ID"),
		PaymobIframeID:            os.Getenv("PAYMOB_IFRAME_ID"),

		R2Endpoint:   os.Getenv("R2_ENDPOINT"),
		R2AccessKey:  os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretKey:  os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2Bucket:     os.Getenv("R2_BUCKET"),
		R2PublicBase: os.Getenv("R2_PUBLIC_BASE_URL"),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
