// internal/config/config.go
package config

// Config is the service configuration (YAML). It only says where things
// live and how the process behaves; device and register settings come from
// the shared settings file it points at.
type Config struct {
	Name           string        `yaml:"name"`
	Settings       string        `yaml:"settings"`
	LockDir        string        `yaml:"lock_dir"`
	PollIntervalMs int           `yaml:"poll_interval_ms"`
	Log            LogConfig     `yaml:"log"`
	Metrics        MetricsConfig `yaml:"metrics"`
}

// ---- LOG ----

type LogConfig struct {
	Level   string `yaml:"level"`
	File    string `yaml:"file"` // empty: derived from local_files.logs
	Console bool   `yaml:"console"`
}

// ---- METRICS ----

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty: disabled
}

const (
	DefaultName     = "datacollection"
	DefaultSettings = "settings.json"
	DefaultLockDir  = "locks"
	DefaultLogLevel = "info"
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	Normalize(cfg)
	return cfg
}
