package gateway

import (
	"fmt"
	"os"
	"time"
)

const (
	defaultBind            = ":8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	// maxBodyBytes caps request bodies. Caption payloads are small; anything
	// larger is abuse.
	maxBodyBytes = 64 * 1024
)

// Config holds the HTTP gateway settings.
type Config struct {
	// Bind is the listen address. PORT overrides the port when set.
	Bind string `yaml:"bind"`

	// JWTSecret signs session tokens. Falls back to JWT_SECRET, then to a
	// random secret (tokens will not survive restarts).
	JWTSecret string `yaml:"jwt_secret"`

	// AdminKey protects the /keys endpoints. Falls back to ADMIN_KEY.
	// When empty the admin API answers 503.
	AdminKey string `yaml:"admin_key"`

	// IngestionBaseURL overrides the upstream caption endpoint. Used in
	// tests and for self-hosted ingestion proxies.
	IngestionBaseURL string `yaml:"ingestion_base_url"`

	// Timeouts are Go duration strings ("15s", "1m").
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`

	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
}

func (c *Config) defaults() {
	if c.Bind == "" {
		if port := os.Getenv("PORT"); port != "" {
			c.Bind = ":" + port
		} else {
			c.Bind = defaultBind
		}
	}
	if c.JWTSecret == "" {
		c.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if c.AdminKey == "" {
		c.AdminKey = os.Getenv("ADMIN_KEY")
	}
}

// resolveTimeouts parses the configured duration strings, substituting
// defaults for empty or non-positive values.
func (c *Config) resolveTimeouts() error {
	var err error
	if c.readTimeout, err = parseTimeout(c.ReadTimeout, defaultReadTimeout); err != nil {
		return fmt.Errorf("read_timeout: %w", err)
	}
	if c.writeTimeout, err = parseTimeout(c.WriteTimeout, defaultWriteTimeout); err != nil {
		return fmt.Errorf("write_timeout: %w", err)
	}
	if c.shutdownTimeout, err = parseTimeout(c.ShutdownTimeout, defaultShutdownTimeout); err != nil {
		return fmt.Errorf("shutdown_timeout: %w", err)
	}
	return nil
}

func parseTimeout(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
