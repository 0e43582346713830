package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App         AppConfig         `yaml:"app"`
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Storage     StorageConfig     `yaml:"storage"`
	PlatformAPI PlatformAPIConfig `yaml:"platform_api"`
	Import      ImportConfig      `yaml:"import"`
	Capture     CaptureConfig     `yaml:"capture"`
	Workers     WorkersConfig     `yaml:"workers"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	Charset            string        `yaml:"charset"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
}

type RedisConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	PoolSize      int    `yaml:"pool_size"`
	ImportQueue   string `yaml:"import_queue"`
	ReimportQueue string `yaml:"reimport_queue"`
	DLQSuffix     string `yaml:"dlq_suffix"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// PlatformAPIConfig points at the race platform the subsystem writes
// normalized readings into and pulls the participant directory from.
type PlatformAPIConfig struct {
	BaseURL              string        `yaml:"base_url"`
	AuthEndpoint         string        `yaml:"auth_endpoint"`
	ReadingsEndpoint     string        `yaml:"readings_endpoint"`
	StatusEventsEndpoint string        `yaml:"status_events_endpoint"`
	ChipIndexEndpoint    string        `yaml:"chip_index_endpoint"`
	ReimportEndpoint     string        `yaml:"reimport_endpoint"`
	Username             string        `yaml:"username"`
	Password             string        `yaml:"password"`
	Timeout              time.Duration `yaml:"timeout"`
	RetryAttempts        int           `yaml:"retry_attempts"`
	RetryDelay           time.Duration `yaml:"retry_delay"`
}

type ImportConfig struct {
	ChunkSize int `yaml:"chunk_size"`
}

// CaptureConfig configures a field capture session: where the device's
// durable queues live and how it identifies itself.
type CaptureConfig struct {
	DeviceID       string        `yaml:"device_id"`
	QueueDir       string        `yaml:"queue_dir"`
	RaceID         int64         `yaml:"race_id"`
	TimingPointID  int64         `yaml:"timing_point_id"`
	Port           int           `yaml:"port"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
}

type WorkersConfig struct {
	Import   ImportWorkerConfig   `yaml:"import"`
	Reimport ReimportWorkerConfig `yaml:"reimport"`
}

type ImportWorkerConfig struct {
	Count int `yaml:"count"`
}

type ReimportWorkerConfig struct {
	Count int `yaml:"count"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Import.ChunkSize <= 0 {
		config.Import.ChunkSize = 100
	}

	return &config, nil
}

// MySQL DSN. loc=Local keeps DATETIME values naive: reading timestamps are
// written as formatted local wall-clock strings and never zone-converted.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=true&loc=Local",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Charset)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
