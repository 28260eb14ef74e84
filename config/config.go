package config

import (
	"os"
	"strconv"
	"time"
)

type ConfigStruct struct {
	Spotify SpotifyConfig
	NGrok   NGrokConfig
	Options Options
	Storage StorageConfig
	Sentry  SentryConfig
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type NGrokConfig struct {
	Domain string
}

type StorageConfig struct {
	DBPath        string
	TokenCacheDir string
}

type SentryConfig struct {
	DSN     string
	Release string
}

type Options struct {
	Port                string
	LogLevel            string
	PollIntervalSeconds int
	SecureCookies       bool
}

func (n *NGrokConfig) IsEnabled() bool {
	return n.Domain != ""
}

func (options *Options) PollInterval() time.Duration {
	return time.Duration(options.PollIntervalSeconds) * time.Second
}

var Config *ConfigStruct

func NewConfig() {
	config := &ConfigStruct{
		Spotify: SpotifyConfig{
			ClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
			ClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
			RedirectURL:  getRedirectURL(),
		},
		NGrok: NGrokConfig{
			Domain: os.Getenv("NGROK_DOMAIN"),
		},
		Options: Options{
			Port:                getPort(),
			LogLevel:            os.Getenv("LOG_LEVEL"),
			PollIntervalSeconds: getPollInterval(),
			SecureCookies:       os.Getenv("SESSION_COOKIE_SECURE") == "true",
		},
		Storage: StorageConfig{
			DBPath:        getEnvDefault("DB_PATH", "./data/linkedsongs.db"),
			TokenCacheDir: getEnvDefault("TOKEN_CACHE_DIR", "./.spotify_caches"),
		},
		Sentry: SentryConfig{
			DSN:     os.Getenv("SENTRY_DSN"),
			Release: os.Getenv("RELEASE"),
		},
	}

	Config = config
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getPort() string {
	return getEnvDefault("PORT", "8080")
}

// Spotify requires the redirect URI to carry an explicit port.
func getRedirectURL() string {
	return getEnvDefault("SPOTIFY_REDIRECT_URI", "http://127.0.0.1:"+getPort()+"/")
}

func getPollInterval() int {
	intervalStr := os.Getenv("POLL_INTERVAL_SECONDS")
	if intervalStr == "" {
		return 2
	}
	interval, err := strconv.Atoi(intervalStr)
	if err != nil || interval <= 0 {
		return 2
	}
	if interval > 60 {
		return 60 // anything slower misses short head songs entirely
	}
	return interval
}
