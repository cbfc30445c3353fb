// Package config loads and validates the verdict configuration: a YAML
// file merged with command-line flag overrides. Validation runs before any
// batch work starts so a bad value never produces a partial run.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"verdict/adapters/store"
)

// Duration wraps time.Duration so YAML can carry values like "500ms".
type Duration time.Duration

// UnmarshalYAML parses Go duration strings ("2m", "500ms").
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"500ms\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// Classifier holds the external classifier endpoint settings.
type Classifier struct {
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	Timeout     Duration `yaml:"timeout"`
	Retries     int      `yaml:"retries"`
	BackoffBase Duration `yaml:"backoff_base"`
	Concurrency int      `yaml:"concurrency"`
}

// Analysis holds the flaky/trend analysis knobs.
type Analysis struct {
	// Window is K, the number of most recent executions considered.
	Window int `yaml:"window"`
	// FlakyThreshold is the minimum failure count within the window
	// before a test is flagged flaky.
	FlakyThreshold int `yaml:"flaky_threshold"`
}

// Config is the full runtime configuration.
type Config struct {
	DBPath     string     `yaml:"db_path"`
	ReportDir  string     `yaml:"report_dir"`
	LogLevel   string     `yaml:"log_level"`
	LogFormat  string     `yaml:"log_format"`
	Analysis   Analysis   `yaml:"analysis"`
	Classifier Classifier `yaml:"classifier"`
}

// Default returns the configuration used when no file or flags override it.
func Default() *Config {
	return &Config{
		DBPath:    store.DefaultDBPath,
		LogLevel:  "info",
		LogFormat: "text",
		Analysis: Analysis{
			Window:         10,
			FlakyThreshold: 4,
		},
		Classifier: Classifier{
			BaseURL:     "http://localhost:11434",
			Model:       "qwen2.5-coder:7b",
			Timeout:     Duration(120 * time.Second),
			Retries:     2,
			BackoffBase: Duration(500 * time.Millisecond),
			Concurrency: 4,
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values that would make a batch meaningless. Called once,
// before the batch starts.
func (c *Config) Validate() error {
	if c.Analysis.Window <= 0 {
		return fmt.Errorf("analysis window must be positive, got %d", c.Analysis.Window)
	}
	if c.Analysis.FlakyThreshold <= 0 {
		return fmt.Errorf("flaky threshold must be positive, got %d", c.Analysis.FlakyThreshold)
	}
	if c.Analysis.FlakyThreshold > c.Analysis.Window {
		return fmt.Errorf("flaky threshold %d exceeds window %d",
			c.Analysis.FlakyThreshold, c.Analysis.Window)
	}
	if c.Classifier.Concurrency <= 0 {
		return fmt.Errorf("classifier concurrency must be positive, got %d", c.Classifier.Concurrency)
	}
	if c.Classifier.Retries < 0 {
		return fmt.Errorf("classifier retries must be non-negative, got %d", c.Classifier.Retries)
	}
	if c.Classifier.BackoffBase <= 0 {
		return fmt.Errorf("classifier backoff base must be positive, got %s", c.Classifier.BackoffBase)
	}
	if c.DBPath == "" {
		return fmt.Errorf("db path must not be empty")
	}
	return nil
}
