package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	HTTPAddr           string
	JWTSecret          string
	LogLevel           string
	CORSAllowedOrigins []string

	AIGatewayURL string
	AIKey        string
	AIModel      string
	AITimeout    time.Duration

	S3Endpoint      string
	S3Region        string
	S3Bucket        string
	S3AccessKeyID   string
	S3SecretKey     string
	S3PublicBaseURL string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	RedisAddr       string
	RedisPassword   string
	VerifyRateLimit int

	ReminderSchedule string
}

const (
	DefaultHTTPAddr         = ":8080"
	DefaultAIGatewayURL     = "https://ai.gateway.lovable.dev/v1/chat/completions"
	DefaultAIModel          = "google/gemini-2.5-flash"
	DefaultReminderSchedule = "0 */5 * * * *"
	DefaultVAPIDSubject     = "mailto:noreply@deadlinefriend.app"
)

// Load reads the environment. A .env file in the working directory is
// applied first but never overrides variables that are already set.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     envInt("DB_PORT", 5432),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  coalesce(os.Getenv("DB_SSLMODE"), "disable"),

		HTTPAddr:           coalesce(os.Getenv("HTTP_ADDR"), DefaultHTTPAddr),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		LogLevel:           coalesce(os.Getenv("LOG_LEVEL"), "info"),
		CORSAllowedOrigins: envList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		AIGatewayURL: coalesce(os.Getenv("AI_GATEWAY_URL"), DefaultAIGatewayURL),
		AIKey:        os.Getenv("AI_API_KEY"),
		AIModel:      coalesce(os.Getenv("AI_MODEL"), DefaultAIModel),
		AITimeout:    time.Duration(envInt("AI_TIMEOUT_SECONDS", 60)) * time.Second,

		S3Endpoint:      os.Getenv("S3_ENDPOINT"),
		S3Region:        coalesce(os.Getenv("S3_REGION"), "auto"),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3AccessKeyID:   os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretKey:     os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),

		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubject:    coalesce(os.Getenv("VAPID_SUBJECT"), DefaultVAPIDSubject),

		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		VerifyRateLimit: envInt("VERIFY_RATE_LIMIT", 20),

		ReminderSchedule: coalesce(os.Getenv("REMINDER_SCHEDULE"), DefaultReminderSchedule),
	}
}

func (c *Config) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func envList(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func coalesce(args ...string) string {
	for _, s := range args {
		if s != "" {
			return s
		}
	}
	return ""
}
