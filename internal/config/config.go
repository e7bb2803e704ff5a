package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"shadow-ledger"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	KafkaBrokers     []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	RawTopic         string   `env:"KAFKA_RAW_TOPIC" envDefault:"transactions.raw"`
	CorrectionsTopic string   `env:"KAFKA_CORRECTIONS_TOPIC" envDefault:"transactions.corrections"`
	DeadLetterTopic  string   `env:"KAFKA_DEAD_LETTER_TOPIC" envDefault:"transactions.deadletter"`
	KafkaGroupID     string   `env:"KAFKA_GROUP_ID" envDefault:"shadow-ledger-group"`

	// PostgresDSN empty selects the in-memory store.
	PostgresDSN string `env:"POSTGRES_DSN"`

	DriftThreshold decimal.Decimal `env:"DRIFT_THRESHOLD" envDefault:"10000"`

	JWTSecret string        `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	TokenTTL  time.Duration `env:"JWT_TOKEN_TTL" envDefault:"1h"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads .env if present, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	opts := env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(decimal.Decimal{}): func(v string) (any, error) {
				return decimal.NewFromString(v)
			},
		},
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
