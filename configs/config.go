package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

// App holds the application-level OAuth credentials of each provider. They are
// merged under every account's own credentials.
type App struct {
	InstagramClientID     string
	InstagramClientSecret string
	FacebookAppID         string
	FacebookAppSecret     string
	TiktokClientKey       string
	TiktokClientSecret    string
	GoogleClientID        string
	GoogleClientSecret    string
	TwitterClientID       string
	TwitterClientSecret   string
	LinkedInClientID      string
	LinkedInClientSecret  string
}

type LLM struct {
	Provider        string
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
}

type Queue struct {
	BatchSize          int
	MaxRetries         int
	Retention          time.Duration
	StaleAfter         time.Duration
	EntryTimeout       time.Duration
	AnalyticsRetention time.Duration
	AnalyticsDelay     time.Duration
	AnalyticsDays      int
}

type HTTP struct {
	Timeout       time.Duration
	UploadTimeout time.Duration
	PollAttempts  int
	PollInterval  time.Duration
}

type AutoShare struct {
	Enabled       bool
	Platforms     []string
	IncludeImage  bool
	ExcerptLength int
}

type Cron struct {
	Drain        string
	Analytics    string
	Cleanup      string
	TokenRefresh string
}

type Config struct {
	Port        string
	PostgresURI string
	RedisURI    string
	SecretKey   string
	CookieName  string
	AdminAPIKey string
	FrontendURL string
	TokenTTL    time.Duration
	App         App
	R2          R2
	LLM         LLM
	Queue       Queue
	HTTP        HTTP
	AutoShare   AutoShare
	Cron        Cron
}

func LoadConfig() *Config {
	return &Config{
		Port:        getEnv("PORT", "3000"),
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", "redis://localhost:6379/0"),
		SecretKey:   getEnv("SECRET_KEY", ""),
		CookieName:  getEnv("COOKIE_NAME", "postflow_token"),
		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		TokenTTL:    getEnvDuration("TOKEN_TTL", 24*time.Hour),
		App: App{
			InstagramClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
			InstagramClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
			FacebookAppID:         getEnv("FACEBOOK_APP_ID", ""),
			FacebookAppSecret:     getEnv("FACEBOOK_APP_SECRET", ""),
			TiktokClientKey:       getEnv("TIKTOK_CLIENT_KEY", ""),
			TiktokClientSecret:    getEnv("TIKTOK_CLIENT_SECRET", ""),
			GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
			GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
			TwitterClientID:       getEnv("TWITTER_CLIENT_ID", ""),
			TwitterClientSecret:   getEnv("TWITTER_CLIENT_SECRET", ""),
			LinkedInClientID:      getEnv("LINKEDIN_CLIENT_ID", ""),
			LinkedInClientSecret:  getEnv("LINKEDIN_CLIENT_SECRET", ""),
		},
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		LLM: LLM{
			Provider:        getEnv("LLM_PROVIDER", "anthropic"),
			AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
			OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Queue: Queue{
			BatchSize:          getEnvAsInt("QUEUE_BATCH_SIZE", 10),
			MaxRetries:         getEnvAsInt("QUEUE_MAX_RETRIES", 3),
			Retention:          getEnvDuration("QUEUE_RETENTION", 30*24*time.Hour),
			StaleAfter:         getEnvDuration("QUEUE_STALE_AFTER", 30*time.Minute),
			EntryTimeout:       getEnvDuration("QUEUE_ENTRY_TIMEOUT", 10*time.Minute),
			AnalyticsRetention: getEnvDuration("ANALYTICS_RETENTION", 90*24*time.Hour),
			AnalyticsDelay:     getEnvDuration("ANALYTICS_SYNC_DELAY", time.Second),
			AnalyticsDays:      getEnvAsInt("ANALYTICS_SYNC_DAYS", 7),
		},
		HTTP: HTTP{
			Timeout:       getEnvDuration("HTTP_TIMEOUT", 60*time.Second),
			UploadTimeout: getEnvDuration("HTTP_UPLOAD_TIMEOUT", 300*time.Second),
			PollAttempts:  getEnvAsInt("POLL_ATTEMPTS", 30),
			PollInterval:  getEnvDuration("POLL_INTERVAL", 2*time.Second),
		},
		AutoShare: AutoShare{
			Enabled:       getEnvBool("AUTOSHARE_ENABLED", false),
			Platforms:     getEnvList("AUTOSHARE_PLATFORMS"),
			IncludeImage:  getEnvBool("AUTOSHARE_INCLUDE_IMAGE", true),
			ExcerptLength: getEnvAsInt("AUTOSHARE_EXCERPT_LENGTH", 200),
		},
		Cron: Cron{
			Drain:        getEnv("CRON_DRAIN", "@every 1m"),
			Analytics:    getEnv("CRON_ANALYTICS", "@daily"),
			Cleanup:      getEnv("CRON_CLEANUP", "@daily"),
			TokenRefresh: getEnv("CRON_TOKEN_REFRESH", "@every 10m"),
		},
	}
}

// AppCredentials maps each platform name to the app-level credential keys its client reads.
func (c *Config) AppCredentials() map[models.Platform]map[string]string {
	return map[models.Platform]map[string]string{
		models.PlatformInstagram: {"client_id": c.App.InstagramClientID, "client_secret": c.App.InstagramClientSecret},
		models.PlatformFacebook:  {"client_id": c.App.FacebookAppID, "client_secret": c.App.FacebookAppSecret},
		models.PlatformTiktok:    {"client_key": c.App.TiktokClientKey, "client_secret": c.App.TiktokClientSecret},
		models.PlatformYoutube:   {"client_id": c.App.GoogleClientID, "client_secret": c.App.GoogleClientSecret},
		models.PlatformTwitter:   {"client_id": c.App.TwitterClientID, "client_secret": c.App.TwitterClientSecret},
		models.PlatformLinkedIn:  {"client_id": c.App.LinkedInClientID, "client_secret": c.App.LinkedInClientSecret},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
