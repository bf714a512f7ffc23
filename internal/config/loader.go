package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Security   SecurityConfig   `mapstructure:"security"`
	Features   FeaturesConfig   `mapstructure:"features"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Targets    TargetsConfig    `mapstructure:"targets"`
	Executor   ExecutorConfig   `mapstructure:"executor"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Hub        HubConfig        `mapstructure:"hub"`
	NATS       NATSConfig       `mapstructure:"nats"`
}

type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type LoggerConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

type FeaturesConfig struct {
	RequestIDHeader      string `mapstructure:"request_id_header"`
	EnableRequestLogging bool   `mapstructure:"enable_request_logging"`
}

type AuthConfig struct {
	AdminAPIKey    string   `mapstructure:"admin_api_key"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type TargetsConfig struct {
	File string `mapstructure:"file"`
}

type ExecutorConfig struct {
	// Mode is "ssh" or "dry_run".
	Mode           string        `mapstructure:"mode"`
	ScriptsDir     string        `mapstructure:"scripts_dir"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	DryRunDelay    time.Duration `mapstructure:"dry_run_delay"`
}

type DispatcherConfig struct {
	ExecutionTimeout time.Duration `mapstructure:"execution_timeout"`
	TaskRetention    time.Duration `mapstructure:"task_retention"`
	PruneInterval    time.Duration `mapstructure:"prune_interval"`
}

type AggregatorConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	MaxParallel  int           `mapstructure:"max_parallel"`
	DiskPath     string        `mapstructure:"disk_path"`
}

type HubConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "booner")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "booner")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "console")
	v.SetDefault("logger.output_paths", []string{"stdout"})
	v.SetDefault("logger.error_output_paths", []string{"stderr"})

	v.SetDefault("features.request_id_header", "X-Request-ID")
	v.SetDefault("features.enable_request_logging", true)

	v.SetDefault("security.encryption_key", "")
	v.SetDefault("auth.admin_api_key", "")
	v.SetDefault("auth.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("targets.file", "config/targets.yaml")

	v.SetDefault("executor.mode", "ssh")
	v.SetDefault("executor.scripts_dir", "scripts")
	v.SetDefault("executor.connect_timeout", 10*time.Second)
	v.SetDefault("executor.max_retries", 3)
	v.SetDefault("executor.dry_run_delay", 2*time.Second)

	v.SetDefault("dispatcher.execution_timeout", time.Duration(0))
	v.SetDefault("dispatcher.task_retention", time.Duration(0))
	v.SetDefault("dispatcher.prune_interval", 10*time.Minute)

	v.SetDefault("aggregator.interval", 3*time.Second)
	v.SetDefault("aggregator.probe_timeout", 2*time.Second)
	v.SetDefault("aggregator.max_parallel", 0)
	v.SetDefault("aggregator.disk_path", "/")

	v.SetDefault("hub.buffer_size", 64)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.subject_prefix", "booner")
}

// Load reads the config file at path. A missing file is not an error; defaults
// and BOONER_* environment variables still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("BOONER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Executor.Mode != "ssh" && c.Executor.Mode != "dry_run" {
		return fmt.Errorf("executor.mode must be one of: ssh, dry_run (got %q)", c.Executor.Mode)
	}
	if c.Aggregator.Interval <= 0 {
		return fmt.Errorf("aggregator.interval must be positive")
	}
	if c.Aggregator.ProbeTimeout <= 0 {
		return fmt.Errorf("aggregator.probe_timeout must be positive")
	}
	if c.Hub.BufferSize <= 0 {
		return fmt.Errorf("hub.buffer_size must be positive")
	}
	return nil
}
