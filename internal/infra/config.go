package infra

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultFilecoinRPC   = "https://api.calibration.node.glif.io/rpc/v1"
	defaultUSDFCAddress  = "0xb3042734b608a1B16e9e86B374A3f3e389B4cDf0"
	defaultWarmStorage   = "0x5233e4253bc38e8cf517c0768dbc8acc886f32b3"
	defaultHistoryTable  = "AI Generated Content"
	defaultGeminiModel   = "gemini-2.0-flash-preview-image-generation"
	defaultGatewayDomain = "filbeam.io"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	// Filecoin warm storage and payments.
	FilecoinPrivateKey   string
	FilecoinRPCURL       string
	USDFCAddress         string
	PaymentsAddress      string
	WarmStorageAddress   string
	StorageProviderID    int
	StorageProviderURL   string
	StorageProviders     map[int]string
	StorageGatewayDomain string
	StorageWithCDN       bool

	// Supabase Postgres.
	DatabaseURL  string
	HistoryTable string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	CORSAllowedOrigins []string
	RateLimitPerMin    int
	ImageMaxBytes      int64
	ImageFetchWorkers  int

	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration
	ImageFetchTimeout time.Duration
	GenerationTimeout time.Duration
	StorageTimeout    time.Duration
	ChainTimeout      time.Duration
	DBTimeout         time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// Missing credentials are not fatal: the affected features report errors at call time.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "production"),
		Port:                 getEnv("PORT", "3001"),
		FilecoinPrivateKey:   strings.TrimSpace(os.Getenv("FILECOIN_PRIVATE_KEY")),
		FilecoinRPCURL:       getEnv("FILECOIN_RPC_URL", defaultFilecoinRPC),
		USDFCAddress:         getEnv("FILECOIN_USDFC_ADDRESS", defaultUSDFCAddress),
		PaymentsAddress:      strings.TrimSpace(os.Getenv("FILECOIN_PAYMENTS_ADDRESS")),
		WarmStorageAddress:   getEnv("FILECOIN_WARM_STORAGE_ADDRESS", defaultWarmStorage),
		StorageProviderID:    getEnvInt("STORAGE_PROVIDER_ID", 1),
		StorageProviderURL:   strings.TrimRight(os.Getenv("STORAGE_PROVIDER_URL"), "/"),
		StorageProviders:     parseProviders(os.Getenv("STORAGE_PROVIDERS")),
		StorageGatewayDomain: getEnv("STORAGE_GATEWAY_DOMAIN", defaultGatewayDomain),
		StorageWithCDN:       getEnvBool("STORAGE_WITH_CDN", true),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		HistoryTable:         getEnv("SUPABASE_TABLE_NAME", defaultHistoryTable),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		GeminiModel:          getEnv("GEMINI_MODEL", defaultGeminiModel),
		GeminiBaseURL:        os.Getenv("GEMINI_BASE_URL"),
		CORSAllowedOrigins:   splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		RateLimitPerMin:      getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		ImageMaxBytes:        int64(getEnvInt("IMAGE_MAX_BYTES", 20<<20)),
		ImageFetchWorkers:    getEnvInt("IMAGE_FETCH_WORKERS", 4),
		HTTPReadTimeout:      time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:     time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:      time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		ImageFetchTimeout:    time.Second * time.Duration(getEnvInt("IMAGE_FETCH_TIMEOUT_SECONDS", 10)),
		GenerationTimeout:    time.Second * time.Duration(getEnvInt("GENERATION_TIMEOUT_SECONDS", 120)),
		StorageTimeout:       time.Second * time.Duration(getEnvInt("STORAGE_TIMEOUT_SECONDS", 120)),
		ChainTimeout:         time.Second * time.Duration(getEnvInt("CHAIN_TIMEOUT_SECONDS", 180)),
		DBTimeout:            time.Second * time.Duration(getEnvInt("DB_TIMEOUT_SECONDS", 10)),
	}

	if cfg.ImageFetchWorkers <= 0 {
		cfg.ImageFetchWorkers = 1
	}

	return cfg, nil
}

// Development reports whether verbose errors may be returned to clients.
func (c *Config) Development() bool {
	return c.AppEnv == "development"
}

// StorageEnabled reports whether a signing key was configured.
func (c *Config) StorageEnabled() bool {
	return c.FilecoinPrivateKey != ""
}

// ProviderEndpoint returns the piece API base URL of the selected storage
// provider. STORAGE_PROVIDER_URL wins over the STORAGE_PROVIDERS table.
func (c *Config) ProviderEndpoint() string {
	if c.StorageProviderURL != "" {
		return c.StorageProviderURL
	}
	return c.StorageProviders[c.StorageProviderID]
}

// UploadsEnabled reports whether artifacts can be stored: a signing key and a
// reachable provider are both required.
func (c *Config) UploadsEnabled() bool {
	return c.StorageEnabled() && c.ProviderEndpoint() != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseProviders reads "id=url" pairs separated by commas. Malformed entries
// are skipped.
func parseProviders(raw string) map[int]string {
	out := make(map[int]string)
	for _, entry := range splitList(raw) {
		id, endpoint, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(id))
		endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
		if err != nil || n <= 0 || endpoint == "" {
			continue
		}
		out[n] = endpoint
	}
	return out
}
