package sqlite

const (
	defaultDBFile      = "livecap.db"
	defaultBusyTimeout = 5000
)

// Config controls the SQLite key registry.
type Config struct {
	// Path is the database file location. Defaults to livecap.db in the
	// application data directory.
	Path string `yaml:"path"`

	// BusyTimeout is the SQLite busy_timeout in milliseconds.
	BusyTimeout int `yaml:"busy_timeout"`

	// WAL toggles write-ahead logging. Enabled unless set to false.
	WAL *bool `yaml:"wal"`
}

func (c *Config) defaults() {
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}
