package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Tunes567/Quantum-Hub/secret"
	"github.com/Tunes567/Quantum-Hub/smpp"
)

// Config is read once at startup from the environment (after godotenv has
// loaded .env, if present).
type Config struct {
	ServerID   string
	LogLevel   logrus.Level
	LogPrivacy bool

	GatewayType       GatewayType
	SenderID          string
	CountryCode       string
	LocalNumberLength int
	MessageTemplate   string
	BulkConcurrency   int
	MaxBulkNumbers    int

	// SMPP is nil when no SMPP host is configured.
	SMPP *SMPPConfig
	// HTTP is nil when no HTTP gateway is configured.
	HTTP *HTTPGatewayConfig

	DefaultRate          decimal.Decimal
	SystemInitialBalance decimal.Decimal
	AdminUsername        string
	LedgerBackend        string

	DB            DBConfig
	MongoURI      string
	MongoDatabase string
	AMQPURL       string

	LokiURL      string
	LokiUsername string
	LokiPassword string

	WebListen        string
	PrometheusListen string
	APIKey           string
}

type SMPPConfig struct {
	Credentials     smpp.Credentials
	SystemTypes     []string
	ProbeTimeout    time.Duration
	ExchangeTimeout time.Duration
	PartDelay       time.Duration
}

type HTTPGatewayConfig struct {
	BaseURL  string
	Account  string
	Password string
	Method   string
	Timeout  time.Duration
	MMSTitle string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.User, c.Password, c.Host, c.Port, c.Name)
}

// LoadConfig reads and validates the environment. Passwords may be given
// encrypted (see package secret) when ENCRYPTION_KEY is set.
func LoadConfig() (*Config, error) {
	var errs []error
	encryptionKey := os.Getenv("ENCRYPTION_KEY")
	cfg := &Config{
		ServerID:          getEnv("SERVER_ID", "sms-hub"),
		LogPrivacy:        getEnvBool("LOG_PRIVACY", false),
		SenderID:          getEnv("SMS_SENDER_ID", "SMSHub"),
		CountryCode:       digitsOnly(getEnv("DEFAULT_COUNTRY_CODE", "52")),
		LocalNumberLength: getEnvInt("LOCAL_NUMBER_LENGTH", 10, &errs),
		MessageTemplate:   os.Getenv("SMS_MESSAGE_TEMPLATE"),
		BulkConcurrency:   getEnvInt("BULK_CONCURRENCY", 1, &errs),
		MaxBulkNumbers:    getEnvInt("MAX_BULK_NUMBERS", 1000, &errs),

		DefaultRate:          getEnvDecimal("DEFAULT_SMS_RATE", "0.05", &errs),
		SystemInitialBalance: getEnvDecimal("SYSTEM_INITIAL_BALANCE", "0", &errs),
		AdminUsername:        getEnv("ADMIN_USERNAME", "admin"),
		LedgerBackend:        strings.ToLower(getEnv("LEDGER_BACKEND", "postgres")),

		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     os.Getenv("DB_USER"),
			Password: getEnvSecret("DB_PASSWORD", encryptionKey, &errs),
			Name:     getEnv("DB_NAME", "smshub"),
		},
		MongoURI:      os.Getenv("MONGODB_URI"),
		MongoDatabase: getEnv("MONGODB_DATABASE", "smshub"),
		AMQPURL:       os.Getenv("AMQP_URL"),

		LokiURL:      os.Getenv("LOKI_URL"),
		LokiUsername: os.Getenv("LOKI_USERNAME"),
		LokiPassword: os.Getenv("LOKI_PASSWORD"),

		WebListen:        getEnv("WEB_LISTEN", "0.0.0.0:3000"),
		PrometheusListen: getEnv("PROMETHEUS_LISTEN", "0.0.0.0:2550"),
		APIKey:           os.Getenv("API_KEY"),
	}

	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	cfg.LogLevel = level

	cfg.GatewayType, err = ParseGatewayType(getEnv("SMS_GATEWAY_TYPE", string(GatewaySMPP)))
	if err != nil {
		errs = append(errs, err)
	}

	if host := os.Getenv("SMPP_HOST"); host != "" {
		creds, err := smpp.NewCredentials(host, getEnvInt("SMPP_PORT", 2775, &errs), os.Getenv("SMPP_USERNAME"), getEnvSecret("SMPP_PASSWORD", encryptionKey, &errs))
		if err != nil {
			errs = append(errs, err)
		}
		cfg.SMPP = &SMPPConfig{
			Credentials:     creds,
			SystemTypes:     parseSystemTypes(getEnv("SMPP_SYSTEM_TYPES", ",SMPP,WWW")),
			ProbeTimeout:    getEnvDuration("SMPP_PROBE_TIMEOUT", 5*time.Second, &errs),
			ExchangeTimeout: getEnvDuration("SMPP_EXCHANGE_TIMEOUT", 10*time.Second, &errs),
			PartDelay:       getEnvDuration("SMPP_PART_DELAY", 100*time.Millisecond, &errs),
		}
	}

	baseURL := os.Getenv("SMS_HTTP_BASE_URL")
	if baseURL == "" && os.Getenv("SMS_HTTP_HOST") != "" {
		baseURL = fmt.Sprintf("http://%s:%s", os.Getenv("SMS_HTTP_HOST"), getEnv("SMS_HTTP_PORT", "80"))
	}
	if baseURL != "" {
		cfg.HTTP = &HTTPGatewayConfig{
			BaseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
			Account:  strings.TrimSpace(os.Getenv("SMS_HTTP_ACCOUNT")),
			Password: strings.TrimSpace(getEnvSecret("SMS_HTTP_PASSWORD", encryptionKey, &errs)),
			Method:   strings.ToUpper(getEnv("SMS_HTTP_METHOD", "GET")),
			Timeout:  getEnvDuration("SMS_HTTP_TIMEOUT", 15*time.Second, &errs),
			MMSTitle: getEnv("SMS_MMS_TITLE", "SMS"),
		}
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *Config) validate() []error {
	var errs []error
	switch {
	case c.SMPP == nil && c.HTTP == nil:
		errs = append(errs, errors.New("no gateway configured: set SMPP_HOST or SMS_HTTP_BASE_URL"))
	case c.GatewayType == GatewaySMPP && c.SMPP == nil:
		errs = append(errs, errors.New("SMS_GATEWAY_TYPE is smpp but SMPP_HOST is not set"))
	case c.GatewayType == GatewayHTTP && c.HTTP == nil:
		errs = append(errs, errors.New("SMS_GATEWAY_TYPE is http but no HTTP gateway is configured"))
	}
	if c.HTTP != nil && c.HTTP.Method != "GET" && c.HTTP.Method != "POST" {
		errs = append(errs, fmt.Errorf("SMS_HTTP_METHOD must be GET or POST, got %q", c.HTTP.Method))
	}
	if c.CountryCode == "" {
		errs = append(errs, errors.New("DEFAULT_COUNTRY_CODE must contain digits"))
	}
	if c.LocalNumberLength <= 0 {
		errs = append(errs, errors.New("LOCAL_NUMBER_LENGTH must be positive"))
	}
	if !c.DefaultRate.IsPositive() {
		errs = append(errs, errors.New("DEFAULT_SMS_RATE must be positive"))
	}
	if c.BulkConcurrency < 1 {
		c.BulkConcurrency = 1
	}
	if c.LedgerBackend != "postgres" && c.LedgerBackend != "memory" {
		errs = append(errs, fmt.Errorf("LEDGER_BACKEND must be postgres or memory, got %q", c.LedgerBackend))
	}
	return errs
}

func parseSystemTypes(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v := strings.ToLower(getEnv(key, ""))
	if v == "" {
		return def
	}
	return v == "true" || v == "1" || v == "yes"
}

func getEnvSecret(key, encryptionKey string, errs *[]error) string {
	v, err := secret.Resolve(os.Getenv(key), encryptionKey)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return ""
	}
	return v
}

func getEnvInt(key string, def int, errs *[]error) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func getEnvDecimal(key, def string, errs *[]error) decimal.Decimal {
	d, err := decimal.NewFromString(getEnv(key, def))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return decimal.Zero
	}
	return d
}
