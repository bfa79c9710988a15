// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port               string
	DatabaseURL        string
	KMSKeyName         string
	GoogleCloudProject string
	LogLevel           string

	// OpenTelemetry
	OtelEnabled      bool
	OtelEndpoint     string
	OtelServiceName  string
	OtelSamplingRate float64
	OtelInsecure     bool

	// 秘密鍵の保管先
	KeyStoreBackend string
	KeysDir         string
	BadgerDir       string
	SealKeys        bool

	// ヘッダー名
	IdentityHeader    string
	KeyHeader         string
	CredentialsHeader string
	PublicKeyHeader   string
	ValidHeader       string
	AdminHeader       string
	CampusesHeader    string
	CampusesAll       string

	// 認証
	FreshnessWindow time.Duration
	TimeZone        string
	BcryptCost      int

	// 起動時のシステム管理者投入
	InjectAdmin   bool
	AdminUsername string
	AdminPassword string
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		KMSKeyName:         os.Getenv("KMS_KEY_NAME"),
		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),

		OtelEnabled:      getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:     getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:  getEnv("OTEL_SERVICE_NAME", "penelope-api"),
		OtelSamplingRate: getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
		OtelInsecure:     getEnvBool("OTEL_INSECURE", false),

		KeyStoreBackend: getEnv("KEY_STORE_BACKEND", "file"),
		KeysDir:         getEnv("KEYS_DIR", "./data/keys"),
		BadgerDir:       getEnv("BADGER_DIR", "./data/badger"),
		SealKeys:        getEnvBool("KEY_STORE_SEAL", false),

		IdentityHeader:    getEnv("HEADER_IDENTITY", "IDENTITY"),
		KeyHeader:         getEnv("HEADER_KEY", "KEY"),
		CredentialsHeader: getEnv("HEADER_CREDENTIALS", "Credentials"),
		PublicKeyHeader:   getEnv("HEADER_PUBLIC_KEY", "Key"),
		ValidHeader:       getEnv("HEADER_VALID", "Valid"),
		AdminHeader:       getEnv("HEADER_ADMIN", "Admin"),
		CampusesHeader:    getEnv("HEADER_CAMPUSES", "Campuses"),
		CampusesAll:       getEnv("CAMPUSES_ALL", "-1"),

		FreshnessWindow: getEnvDuration("AUTH_FRESHNESS_WINDOW", 60*time.Second),
		TimeZone:        getEnv("AUTH_TIME_ZONE", "Europe/London"),
		BcryptCost:      getEnvInt("BCRYPT_COST", 10),

		InjectAdmin:   getEnvBool("INJECT_ADMIN", false),
		AdminUsername: os.Getenv("ADMIN_USERNAME"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvFloat(key string, defaultVal float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
