package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port     int    `yaml:"port"`
		OpsToken string `yaml:"ops_token"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // sqlite | mysql | postgres
		DSN      string `yaml:"dsn"`
		Path     string `yaml:"path"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	Worker struct {
		OrganizationID string        `yaml:"organization_id"`
		PollInterval   time.Duration `yaml:"poll_interval"`
		MaxRuntime     time.Duration `yaml:"max_runtime"`
	} `yaml:"worker"`

	Scheduler struct {
		PollInterval  time.Duration `yaml:"poll_interval"`
		MaxConcurrent int           `yaml:"max_concurrent_jobs_per_org"`
	} `yaml:"scheduler"`

	Sandbox struct {
		AllowedCommands []string      `yaml:"allowed_commands"`
		ShellTimeout    time.Duration `yaml:"shell_timeout"`
	} `yaml:"sandbox"`

	Artifacts struct {
		Dir           string   `yaml:"dir"`
		Backend       string   `yaml:"backend"` // local | minio
		ReportFormats []string `yaml:"report_formats"`
	} `yaml:"artifacts"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	AI struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"ai"`

	Audit struct {
		NatsURL string `yaml:"nats_url"`
		Subject string `yaml:"subject"`
	} `yaml:"audit"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Dir    string `yaml:"dir"`
	} `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	cfg.Server.Port = 9090
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = "pulse.db"
	cfg.Worker.PollInterval = 5 * time.Second
	cfg.Worker.MaxRuntime = 900 * time.Second
	cfg.Scheduler.PollInterval = 60 * time.Second
	cfg.Scheduler.MaxConcurrent = 3
	cfg.Sandbox.ShellTimeout = 15 * time.Second
	cfg.Artifacts.Dir = "artifacts"
	cfg.Artifacts.Backend = "local"
	cfg.Artifacts.ReportFormats = []string{"json", "html"}
	cfg.Audit.Subject = "pulse.audit"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return &cfg
}

// Load baca file config.yaml di atas default, lalu override dari env.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	seconds := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: expected seconds, got %q", key, v)
		}
		*dst = time.Duration(n) * time.Second
		return nil
	}

	str("DB_DRIVER", &c.Database.Driver)
	str("DB_DSN", &c.Database.DSN)
	str("LOGS_DIR", &c.Log.Dir)
	str("LOG_LEVEL", &c.Log.Level)
	str("ARTIFACTS_DIR", &c.Artifacts.Dir)
	str("OPENAI_API_KEY", &c.AI.APIKey)
	str("NATS_URL", &c.Audit.NatsURL)
	str("OPS_TOKEN", &c.Server.OpsToken)
	str("WORKER_ORGANIZATION_ID", &c.Worker.OrganizationID)
	if v, ok := lookup("ALLOWED_COMMANDS"); ok && v != "" {
		c.Sandbox.AllowedCommands = splitList(v)
	}
	if v, ok := lookup("MAX_CONCURRENT_JOBS_PER_ORG"); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("MAX_CONCURRENT_JOBS_PER_ORG: %w", err)
		}
		c.Scheduler.MaxConcurrent = n
	}
	return errors.Join(
		seconds("SHELL_TIMEOUT", &c.Sandbox.ShellTimeout),
		seconds("MAX_SCAN_RUNTIME_PER_JOB", &c.Worker.MaxRuntime),
		seconds("WORKER_POLL_INTERVAL", &c.Worker.PollInterval),
		seconds("SCHEDULER_POLL_INTERVAL", &c.Scheduler.PollInterval),
	)
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver: unsupported %q", c.Database.Driver))
	}
	if c.Worker.PollInterval <= 0 {
		errs = append(errs, errors.New("worker.poll_interval must be positive"))
	}
	if c.Worker.MaxRuntime <= 0 {
		errs = append(errs, errors.New("worker.max_runtime must be positive"))
	}
	if c.Scheduler.PollInterval <= 0 {
		errs = append(errs, errors.New("scheduler.poll_interval must be positive"))
	}
	if c.Scheduler.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("scheduler.max_concurrent_jobs_per_org must be positive"))
	}
	if c.Sandbox.ShellTimeout <= 0 {
		errs = append(errs, errors.New("sandbox.shell_timeout must be positive"))
	}
	for _, f := range c.Artifacts.ReportFormats {
		switch f {
		case "json", "html", "pdf":
		default:
			errs = append(errs, fmt.Errorf("artifacts.report_formats: unknown %q", f))
		}
	}
	switch c.Artifacts.Backend {
	case "local", "minio":
	default:
		errs = append(errs, fmt.Errorf("artifacts.backend: unsupported %q", c.Artifacts.Backend))
	}
	return errors.Join(errs...)
}

// DatabaseDSN returns the explicit DSN or builds one for the driver.
func (c *Config) DatabaseDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	switch c.Database.Driver {
	case "mysql":
		return c.MySQLDSN()
	case "postgres":
		return c.PostgresDSN()
	default:
		return c.Database.Path
	}
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN PostgreSQL
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
