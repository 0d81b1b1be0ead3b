package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
		// APIKeys non-empty turns on bearer auth for every route except /health.
		APIKeys []string `yaml:"apiKeys"`
		// RateLimit is requests-per-second per client IP; 0 disables limiting.
		RateLimit      int `yaml:"rateLimit"`
		RateLimitBurst int `yaml:"rateLimitBurst"`
	} `yaml:"server"`

	Scanner struct {
		// OutputsDir is the root of per-scan output trees
		// (outputs/{scanId}/{tool}).
		OutputsDir string `yaml:"outputsDir"`
		// ToolTimeoutSeconds bounds one tool invocation, not the scan.
		ToolTimeoutSeconds int `yaml:"toolTimeoutSeconds"`
		// Parallelism: 1 = sequential (default); >1 runs tools of one scan
		// in a bounded pool. Output dirs are disjoint per (scan, tool).
		Parallelism int `yaml:"parallelism"`

		NucleiTemplatesDir string `yaml:"nucleiTemplatesDir"`
		NiktoScript        string `yaml:"niktoScript"`
		YaraRulesIndex     string `yaml:"yaraRulesIndex"`
	} `yaml:"scanner"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	StatusSink struct {
		BaseURL        string `yaml:"baseURL"`
		TimeoutSeconds int    `yaml:"timeoutSeconds"`
	} `yaml:"statusSink"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`
}

// Load baca file config.yaml
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8081
	}
	if c.Server.RateLimit > 0 && c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = c.Server.RateLimit * 2
	}
	if c.Scanner.OutputsDir == "" {
		c.Scanner.OutputsDir = "outputs"
	}
	if c.Scanner.ToolTimeoutSeconds == 0 {
		c.Scanner.ToolTimeoutSeconds = 3600
	}
	if c.Scanner.Parallelism == 0 {
		c.Scanner.Parallelism = 1
	}
	if c.Scanner.NucleiTemplatesDir == "" {
		c.Scanner.NucleiTemplatesDir = "/root/nuclei-templates"
	}
	if c.Scanner.NiktoScript == "" {
		c.Scanner.NiktoScript = "/opt/nikto/program/nikto.pl"
	}
	if c.Scanner.YaraRulesIndex == "" {
		c.Scanner.YaraRulesIndex = "/opt/yara-rules/index.yar"
	}
	if c.StatusSink.TimeoutSeconds == 0 {
		c.StatusSink.TimeoutSeconds = 5
	}
}

func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Scanner.ToolTimeoutSeconds) * time.Second
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

// PostgresDSN untuk lib/pq
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
	)
}
