package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Client struct {
	ServerURL      string
	Profile        string
	Debug          bool
	DebugLogPath   string
	PollInterval   time.Duration
	RequestTimeout time.Duration
}

type Server struct {
	HTTPAddr          string
	DatabaseURL       string
	JWTSecret         string
	JWTIssuer         string
	AccessTokenTTL    time.Duration
	AuthAttemptsLimit int
	AuthWindow        time.Duration
}

// LoadDotEnv reads a .env file from the working directory when present.
// Variables already set in the environment win.
func LoadDotEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("ignoring .env: %v", err)
	}
}

func LoadClient() Client {
	return Client{
		ServerURL:      getenv("ROSTERCHAT_SERVER", "http://localhost:8080/api"),
		Profile:        getenv("ROSTERCHAT_PROFILE", "default"),
		Debug:          getenvBool("ROSTERCHAT_DEBUG", false),
		DebugLogPath:   getenv("ROSTERCHAT_DEBUG_LOG", "debug.log"),
		PollInterval:   getenvDuration("ROSTERCHAT_POLL_INTERVAL", 3*time.Second),
		RequestTimeout: getenvDuration("ROSTERCHAT_REQUEST_TIMEOUT", 10*time.Second),
	}
}

func LoadServer() Server {
	return Server{
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:       getenv("DATABASE_URL", ""),
		JWTSecret:         getenv("JWT_SECRET", "dev-secret"),
		JWTIssuer:         getenv("JWT_ISSUER", "rosterchat-dev"),
		AccessTokenTTL:    getenvDuration("ACCESS_TOKEN_TTL", 24*time.Hour),
		AuthAttemptsLimit: getenvInt("AUTH_ATTEMPTS_PER_MIN", 5),
		AuthWindow:        time.Minute,
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
