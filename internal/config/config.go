package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds account, server and refresh settings.
// Load from env and/or a .env file (see LoadEnvFile).
type Config struct {
	// Account
	Username string
	Password string

	// Server
	Addr    string // listen address, e.g. ":8183"
	BaseURL string // advertised base URL for playlist/EPG links; derived from request Host when empty

	// Guide
	GuideDays       int           // EPG horizon in days (1-7)
	RefreshInterval time.Duration // guide cache refresh period
	GuideGrace      time.Duration // keep just-ended programs this long to avoid boundary flicker

	// Session
	KeepAliveInterval time.Duration // proactive session check period
	SessionCacheFile  string        // path to session cache JSON; "" = disabled

	// Upstream
	UpstreamTimeout time.Duration // per-request timeout for all upstream calls
	UpstreamRate    float64       // max upstream requests per second
	LeaseTTL        time.Duration // how long a resolved stream URL is reused

	// Upstream URL overrides (tests / regional mirrors); empty = production endpoints.
	APIURL      string
	GuideAPIURL string
	LiveMapURL  string
}

// Load reads config from environment. Call LoadEnvFile(".env") before Load()
// to use a .env file. If Username or Password are empty, Load tries
// FRNDLY_TUNER_CREDENTIALS_FILE with "Username:" / "Password:" lines.
func Load() *Config {
	c := &Config{
		Username:          os.Getenv("FRNDLY_TUNER_USERNAME"),
		Password:          os.Getenv("FRNDLY_TUNER_PASSWORD"),
		Addr:              getEnv("FRNDLY_TUNER_ADDR", ":8183"),
		BaseURL:           os.Getenv("FRNDLY_TUNER_BASE_URL"),
		GuideDays:         getEnvInt("FRNDLY_TUNER_GUIDE_DAYS", 3),
		RefreshInterval:   getEnvDuration("FRNDLY_TUNER_REFRESH_INTERVAL", 30*time.Minute),
		GuideGrace:        getEnvDuration("FRNDLY_TUNER_GUIDE_GRACE", 5*time.Minute),
		KeepAliveInterval: getEnvDuration("FRNDLY_TUNER_KEEPALIVE_INTERVAL", 30*time.Minute),
		SessionCacheFile:  os.Getenv("FRNDLY_TUNER_SESSION_CACHE_FILE"),
		UpstreamTimeout:   getEnvDuration("FRNDLY_TUNER_UPSTREAM_TIMEOUT", 15*time.Second),
		UpstreamRate:      getEnvFloat("FRNDLY_TUNER_UPSTREAM_RATE", 5),
		LeaseTTL:          getEnvDuration("FRNDLY_TUNER_LEASE_TTL", 5*time.Minute),
		APIURL:            os.Getenv("FRNDLY_TUNER_API_URL"),
		GuideAPIURL:       os.Getenv("FRNDLY_TUNER_GUIDE_API_URL"),
		LiveMapURL:        os.Getenv("FRNDLY_TUNER_LIVE_MAP_URL"),
	}
	c.GuideDays = ClampDays(c.GuideDays)
	if c.RefreshInterval < time.Minute {
		c.RefreshInterval = 30 * time.Minute
	}
	if c.KeepAliveInterval < time.Minute {
		c.KeepAliveInterval = 30 * time.Minute
	}
	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = 15 * time.Second
	}
	if c.UpstreamRate <= 0 {
		c.UpstreamRate = 5
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 5 * time.Minute
	}
	if c.Username == "" || c.Password == "" {
		if user, pass, err := readCredentialsFile(os.Getenv("FRNDLY_TUNER_CREDENTIALS_FILE")); err == nil {
			if c.Username == "" {
				c.Username = user
			}
			if c.Password == "" {
				c.Password = pass
			}
		}
	}
	return c
}

// ClampDays normalizes a requested guide horizon to the supported 1-7 range.
func ClampDays(days int) int {
	if days < 1 {
		return 1
	}
	if days > 7 {
		return 7
	}
	return days
}

// readCredentialsFile reads "Username: x" and "Password: x" lines from path.
func readCredentialsFile(path string) (user, pass string, err error) {
	if path == "" {
		return "", "", os.ErrNotExist
	}
	path = filepath.Clean(path)
	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "Username:") {
			user = strings.TrimSpace(strings.TrimPrefix(line, "Username:"))
		} else if strings.HasPrefix(line, "Password:") {
			pass = strings.TrimSpace(strings.TrimPrefix(line, "Password:"))
		}
	}
	if err := sc.Err(); err != nil {
		return "", "", err
	}
	if user == "" || pass == "" {
		return "", "", fmt.Errorf("credentials file: missing Username or Password")
	}
	return user, pass, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
