package utils

import (
	"os"
	"strconv"
	"time"
)

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTDuration time.Duration

	OperatorUser         string
	OperatorPasswordHash string
}

func LoadAuthConfig() AuthConfig {
	secret := os.Getenv("PRICEHUB_JWT_SECRET")
	if secret == "" {
		// dev default (change for production)
		secret = "dev-secret-change-me"
	}

	issuer := os.Getenv("PRICEHUB_JWT_ISSUER")
	if issuer == "" {
		issuer = "pricehub"
	}

	ttl := 24 * time.Hour
	if v := os.Getenv("PRICEHUB_JWT_TTL_HOURS"); v != "" {
		// if parse fails, fallback to 24h
		if h, err := strconv.Atoi(v); err == nil && h > 0 {
			ttl = time.Duration(h) * time.Hour
		}
	}

	user := os.Getenv("PRICEHUB_OPERATOR_USER")
	if user == "" {
		user = "operator"
	}

	return AuthConfig{
		JWTSecret:            secret,
		JWTIssuer:            issuer,
		JWTDuration:          ttl,
		OperatorUser:         user,
		OperatorPasswordHash: os.Getenv("PRICEHUB_OPERATOR_PASSWORD_HASH"),
	}
}

type ServerConfig struct {
	HTTPAddr   string
	GrpcAddr   string
	EventsAddr string
	// IngestConfig is the path to the ingest yaml used by the trigger endpoint.
	IngestConfig string
}

func LoadServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:     envOr("PRICEHUB_HTTP_ADDR", ":8080"),
		GrpcAddr:     envOr("PRICEHUB_GRPC_ADDR", ":9090"),
		EventsAddr:   os.Getenv("PRICEHUB_EVENTS_ADDR"),
		IngestConfig: envOr("PRICEHUB_CONFIG", "configs/pricehub.yaml"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
