package config

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	WindowPolicyIdle  = "idle"
	WindowPolicyFixed = "fixed"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

type Config struct {
	AppBaseURL string
	ListenAddr string
	LogLevel   string

	TgBotToken         string
	TgWebhookSecret    string
	UseTgWebhook       bool
	TgPollTimeoutSec   int
	AllowedChatIDs     map[int64]bool
	ChatAccountMapping map[int64][]string

	TiktokClientKey    string
	TiktokClientSecret string
	TiktokRedirectURI  string

	PostingMode     string
	FallbackToDraft bool
	EnablePhotoAPI  bool

	CaptionTemplate  string
	AppendHashtags   string
	CaptionMaxLength int

	MediaStoragePath       string
	MediaGroupFlushSeconds int
	MediaGroupWindowPolicy string
	SlideSeconds           int
	SlideshowFPS           int

	RateLimitPerMinute int
	QueueConcurrency   int
	MaxAttempts        int

	PostgresURI string
	RedisURI    string
	SecretKey   string
	AdminToken  string

	R2 R2
}

func LoadConfig() *Config {
	return &Config{
		AppBaseURL: getEnv("APP_BASE_URL", "http://localhost:3000"),
		ListenAddr: getEnv("LISTEN_ADDR", ":3000"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		TgBotToken:         getEnv("TG_BOT_TOKEN", ""),
		TgWebhookSecret:    getEnv("TG_WEBHOOK_SECRET", ""),
		UseTgWebhook:       getEnvBool("USE_TG_WEBHOOK", true),
		TgPollTimeoutSec:   getEnvInt("TG_POLL_TIMEOUT_SECONDS", 30),
		AllowedChatIDs:     parseChatIDs(getEnv("TG_ALLOWED_CHAT_IDS", "")),
		ChatAccountMapping: parseChatMapping(getEnv("TG_TIKTOK_MAPPING", "")),

		TiktokClientKey:    getEnv("TIKTOK_CLIENT_KEY", ""),
		TiktokClientSecret: getEnv("TIKTOK_CLIENT_SECRET", ""),
		TiktokRedirectURI:  getEnv("TIKTOK_REDIRECT_URI", "http://localhost:3000/tiktok/auth/callback"),

		PostingMode:     getEnv("POSTING_MODE", "draft"),
		FallbackToDraft: getEnvBool("FALLBACK_TO_DRAFT", true),
		EnablePhotoAPI:  getEnvBool("ENABLE_PHOTO_API", false),

		CaptionTemplate:  getEnv("CAPTION_TEMPLATE", "From TG: {text}"),
		AppendHashtags:   getEnv("APPEND_HASHTAGS", ""),
		CaptionMaxLength: getEnvInt("CAPTION_MAX_LENGTH", 2200),

		MediaStoragePath:       getEnv("MEDIA_STORAGE_PATH", "./data/media"),
		MediaGroupFlushSeconds: getEnvInt("MEDIA_GROUP_FLUSH_SECONDS", 3),
		MediaGroupWindowPolicy: getEnv("MEDIA_GROUP_WINDOW_POLICY", WindowPolicyIdle),
		SlideSeconds:           getEnvInt("SLIDE_SECONDS", 2),
		SlideshowFPS:           getEnvInt("SLIDESHOW_FPS", 30),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 6),
		QueueConcurrency:   getEnvInt("QUEUE_CONCURRENCY", 10),
		MaxAttempts:        getEnvInt("MAX_ATTEMPTS", 5),

		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", "127.0.0.1:6379"),
		SecretKey:   getEnv("SECRET_KEY", ""),
		AdminToken:  getEnv("ADMIN_TOKEN", ""),

		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
	}
}

// Validate reports configuration problems that make the process unable to
// run. It is checked once at startup; a non-nil result is fatal.
func (c *Config) Validate() error {
	var problems []string

	if c.TgBotToken == "" {
		problems = append(problems, "TG_BOT_TOKEN is required")
	}
	if c.UseTgWebhook && c.TgWebhookSecret == "" {
		problems = append(problems, "TG_WEBHOOK_SECRET is required when USE_TG_WEBHOOK=true")
	}
	if c.PostgresURI == "" {
		problems = append(problems, "POSTGRES_URI is required")
	}
	if len(c.SecretKey) != 32 {
		problems = append(problems, "SECRET_KEY must be exactly 32 bytes")
	}
	if c.PostingMode != "draft" && c.PostingMode != "direct" {
		problems = append(problems, "POSTING_MODE must be draft or direct")
	}
	if c.MediaGroupWindowPolicy != WindowPolicyIdle && c.MediaGroupWindowPolicy != WindowPolicyFixed {
		problems = append(problems, "MEDIA_GROUP_WINDOW_POLICY must be idle or fixed")
	}
	if c.MediaGroupFlushSeconds < 1 {
		problems = append(problems, "MEDIA_GROUP_FLUSH_SECONDS must be >= 1")
	}
	if c.RateLimitPerMinute < 1 {
		problems = append(problems, "RATE_LIMIT_PER_MINUTE must be >= 1")
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring non-integer env value")
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("ignoring non-boolean env value")
		return defaultValue
	}
	return b
}

// parseChatIDs parses a comma-separated list of Telegram chat ids.
// An empty result means "all chats allowed".
func parseChatIDs(raw string) map[int64]bool {
	ids := make(map[int64]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Warn().Str("value", part).Msg("ignoring non-integer chat id")
			continue
		}
		ids[id] = true
	}
	return ids
}

// parseChatMapping parses the JSON chat-to-accounts mapping, e.g.
// {"-1001234567890":["acc1","acc2"]}. Chats absent from the mapping are
// delivered to every registered account.
func parseChatMapping(raw string) map[int64][]string {
	mapping := make(map[int64][]string)
	if strings.TrimSpace(raw) == "" {
		return mapping
	}

	var payload map[string][]string
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		log.Warn().Err(err).Msg("ignoring malformed TG_TIKTOK_MAPPING")
		return mapping
	}

	for key, labels := range payload {
		chatID, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
		if err != nil {
			log.Warn().Str("key", key).Msg("ignoring non-integer chat id in TG_TIKTOK_MAPPING")
			continue
		}
		var cleaned []string
		for _, label := range labels {
			if label = strings.TrimSpace(label); label != "" {
				cleaned = append(cleaned, label)
			}
		}
		if len(cleaned) > 0 {
			mapping[chatID] = cleaned
		}
	}
	return mapping
}
