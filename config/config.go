package config

import (
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	FetchModeHTTP    = "http"
	FetchModeBrowser = "browser"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	BaseURL        string
	ListingPath    string
	FileSuffix     string
	RequestTimeout time.Duration
	CacheTTL       time.Duration
	FetchMode      string
	ChromeBin      string

	Columns          Columns
	DecimalSeparator string
	TopCountries     int
	PriceThreshold   float64

	ServerHost string
	ServerPort string

	SnapshotEnabled  bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	MaxRetries       int

	CSVExportPath string
}

// Columns names the CSV headers the aggregates rely on.
type Columns struct {
	Company      string
	Price        string
	Data         string
	PricePerUnit string
	Coverage     string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		BaseURL:        getEnv("CSV_BASE_URL", "http://localhost:8000/"),
		ListingPath:    getEnv("CSV_LISTING_PATH", "csv/"),
		FileSuffix:     getEnv("CSV_FILE_SUFFIX", "Plans.csv"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 10)) * time.Second,
		CacheTTL:       time.Duration(getEnvInt("CACHE_TTL_SEC", 3600)) * time.Second,
		FetchMode:      strings.ToLower(getEnv("FETCH_MODE", FetchModeHTTP)),
		ChromeBin:      getEnv("CHROME_BIN", ""),

		Columns: Columns{
			Company:      getEnv("COL_COMPANY", "NOM ENTREPRISE"),
			Price:        getEnv("COL_PRICE", "PRIX"),
			Data:         getEnv("COL_DATA", "DATA (GO)"),
			PricePerUnit: getEnv("COL_PRICE_PER_UNIT", "PRIX/GO"),
			Coverage:     getEnv("COL_COVERAGE", "PAYS"),
		},
		DecimalSeparator: getEnv("DECIMAL_SEPARATOR", ","),
		TopCountries:     getEnvInt("TOP_COUNTRIES", 10),
		PriceThreshold:   getEnvFloat("PRICE_THRESHOLD", 100),

		ServerHost: getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort: getEnv("SERVER_PORT", "8080"),

		SnapshotEnabled:  getEnvBool("SNAPSHOT_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "dashboard"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "dashboard"),
		PostgresDB:       getEnv("POSTGRES_DB", "esim_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		MaxRetries:       getEnvInt("MAX_RETRIES", 5),

		CSVExportPath: getEnv("CSV_EXPORT_PATH", ""),
	}
}

// ListingURL returns the absolute URL of the top-level provider listing.
func (c *Config) ListingURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(c.ListingPath, "/")
}

// ServerAddr returns the host:port the HTTP API listens on.
func (c *Config) ServerAddr() string {
	return net.JoinHostPort(c.ServerHost, c.ServerPort)
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
