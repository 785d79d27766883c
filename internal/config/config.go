package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSystemInstruction = "You are an elite personal gym trainer. You provide workout plans, diet advice, " +
		"and form checks based on user input and uploaded files (images/PDFs). Be motivational, precise, and helpful. " +
		"If user provide their injuries details, consider them carefully in your advice."
	DefaultProvider = "gemini"
	DefaultModel    = "gemini-2.5-flash"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig    `json:"basic_config" yaml:"basic_config"`
	AI          AIConfig       `json:"ai" yaml:"ai"`
	Database    DatabaseConfig `json:"database" yaml:"database"`
	Redis       RedisConfig    `json:"redis" yaml:"redis"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address" yaml:"server_address"`
	StaticDir     string `json:"static_dir" yaml:"static_dir"`
	StagingDir    string `json:"staging_dir" yaml:"staging_dir"`
	// minutes
	StagingTTL           int `json:"staging_ttl" yaml:"staging_ttl"`
	StagingCleanInterval int `json:"staging_clean_interval" yaml:"staging_clean_interval"`
	MaxUploadMB          int `json:"max_upload_mb" yaml:"max_upload_mb"`
	SessionQueueSize     int `json:"session_queue_size" yaml:"session_queue_size"`
}

type AIConfig struct {
	Provider          string `json:"provider" yaml:"provider"`
	Model             string `json:"model" yaml:"model"`
	APIKey            string `json:"api_key" yaml:"api_key"`
	BaseURL           string `json:"base_url" yaml:"base_url"`
	MaxTokens         int    `json:"max_tokens" yaml:"max_tokens"`
	SystemInstruction string `json:"system_instruction" yaml:"system_instruction"`
}

// Enabled reports whether the credential needed to build the AI session is present.
func (c AIConfig) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

type DatabaseConfig struct {
	Driver   string `json:"driver" yaml:"driver"`
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	DBName   string `json:"db_name" yaml:"db_name"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	Params   string `json:"params" yaml:"params"`
	// DSN is used as-is when set; required for sqlite.
	DSN string `json:"dsn" yaml:"dsn"`
}

type RedisConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	// minutes
	TTL int `json:"ttl" yaml:"ttl"`
}

// Enabled reports whether a redis host was configured.
func (c RedisConfig) Enabled() bool {
	return c.Host != ""
}

// Load reads configuration from the provided path (defaults to config.json),
// then applies environment overrides and defaults. A missing default file is
// not an error so the service can run from the environment alone.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(absPath)
	switch {
	case err == nil:
		if err := decode(absPath, data, &cfg); err != nil {
			return nil, err
		}
		if dir := cfg.BasicConfig.StaticDir; dir != "" && !filepath.IsAbs(dir) {
			cfg.BasicConfig.StaticDir = filepath.Join(filepath.Dir(absPath), dir)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.AI.APIKey, "GEMINI_API_KEY")
	setString(&cfg.AI.Provider, "GYMCHAT_AI_PROVIDER")
	setString(&cfg.AI.Model, "GYMCHAT_AI_MODEL")
	setString(&cfg.BasicConfig.ServerAddress, "GYMCHAT_ADDR")
	setString(&cfg.Database.Driver, "DB_DRIVER")
	setString(&cfg.Database.Host, "DB_HOST")
	setString(&cfg.Database.DBName, "DB_NAME")
	setString(&cfg.Database.Username, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASS")
	setString(&cfg.Database.DSN, "DB_DSN")
	setInt(&cfg.Database.Port, "DB_PORT")

	if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" {
		host, port, found := strings.Cut(addr, ":")
		cfg.Redis.Host = host
		if found {
			if p, err := strconv.Atoi(port); err == nil {
				cfg.Redis.Port = p
			}
		}
	}
}

func applyDefaults(cfg *Config) {
	b := &cfg.BasicConfig
	if b.ServerAddress == "" {
		b.ServerAddress = ":5000"
	}
	if b.StaticDir == "" {
		b.StaticDir = "static"
	}
	if b.StagingDir == "" {
		b.StagingDir = filepath.Join(os.TempDir(), "gymchat-staging")
	}
	if b.StagingTTL <= 0 {
		b.StagingTTL = 60
	}
	if b.StagingCleanInterval <= 0 {
		b.StagingCleanInterval = 15
	}
	if b.MaxUploadMB <= 0 {
		b.MaxUploadMB = 32
	}
	if b.SessionQueueSize <= 0 {
		b.SessionQueueSize = 16
	}

	ai := &cfg.AI
	if ai.Provider == "" {
		ai.Provider = DefaultProvider
	}
	if ai.Model == "" && ai.Provider == DefaultProvider {
		ai.Model = DefaultModel
	}
	if ai.SystemInstruction == "" {
		ai.SystemInstruction = DefaultSystemInstruction
	}

	db := &cfg.Database
	if db.Driver == "" {
		db.Driver = "postgres"
	}
	if db.Host == "" {
		db.Host = "localhost"
	}
	if db.DBName == "" {
		db.DBName = "postgres"
	}
	if db.Username == "" {
		db.Username = "postgres"
	}
	if db.Password == "" {
		db.Password = "mysecretpassword"
	}
	if db.Port == 0 {
		switch strings.ToLower(db.Driver) {
		case "mysql":
			db.Port = 3306
		default:
			db.Port = 5432
		}
	}

	if cfg.Redis.Enabled() {
		if cfg.Redis.Port == 0 {
			cfg.Redis.Port = 6379
		}
		if cfg.Redis.TTL <= 0 {
			cfg.Redis.TTL = 24 * 60
		}
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
