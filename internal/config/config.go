package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const DefaultDatasetFile = "section111validicd10-jan2026_cms-updates-to-cms-gov.xlsx"

type Config struct {
	DatasetPath          string
	DatasetExcludedSheet string
	RoleKeywordsFile     string

	DBPath     string
	RawMailDir string
	OutputDir  string

	PageSize       int
	MinQueryLength int
	SuggestLimit   int

	HTTPAddr         string
	HTTPRateLimitRPS float64

	AIAPIBaseURL   string
	AIAPIKey       string
	AIModel        string
	AITimeoutMs    int
	AIRateLimitRPS int
	AIMaxTokens    int

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailListenerProvider     string
	MailListenerLabel        string
	MailListenerIntervalSec  int
	MailListenerFetchMax     int
	MailListenerProcessBatch int
	MailListenerAutoExport   bool
	MailListenerLockPath     string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DatasetPath:          getEnv("DATASET_PATH", filepath.Join(cwd, DefaultDatasetFile)),
		DatasetExcludedSheet: getEnv("DATASET_EXCLUDED_SHEET", ""),
		RoleKeywordsFile:     getEnv("ROLE_KEYWORDS_FILE", ""),

		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		PageSize:       getEnvInt("PAGE_SIZE", 30),
		MinQueryLength: getEnvInt("MIN_QUERY_LENGTH", 2),
		SuggestLimit:   getEnvInt("SUGGEST_LIMIT", 5),

		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		HTTPRateLimitRPS: getEnvFloat("HTTP_RATE_LIMIT_RPS", 2),

		AIAPIBaseURL:   getEnv("AI_API_BASE_URL", "https://api.openai.com/v1"),
		AIAPIKey:       getEnv("AI_API_KEY", ""),
		AIModel:        getEnv("AI_MODEL", "gpt-4o-mini"),
		AITimeoutMs:    getEnvInt("AI_TIMEOUT_MS", 30000),
		AIRateLimitRPS: getEnvInt("AI_RATE_LIMIT_RPS", 2),
		AIMaxTokens:    getEnvInt("AI_MAX_TOKENS", 400),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailListenerProvider:     getEnv("MAIL_LISTENER_PROVIDER", "imap"),
		MailListenerLabel:        getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerIntervalSec:  getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 60),
		MailListenerFetchMax:     getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerProcessBatch: getEnvInt("MAIL_LISTENER_PROCESS_BATCH", 20),
		MailListenerAutoExport:   getEnvBool("MAIL_LISTENER_AUTO_EXPORT", true),
		MailListenerLockPath:     getEnv("MAIL_LISTENER_LOCK", filepath.Join(cwd, "data", "listener.lock")),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
