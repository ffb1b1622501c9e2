package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	OpenAI struct {
		APIKey         string `yaml:"apiKey"`
		Model          string `yaml:"model"`
		TimeoutSeconds int    `yaml:"timeoutSeconds"`
	} `yaml:"openai"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	// Auth maps principal id -> bearer token
	Auth struct {
		Tokens map[string]string `yaml:"tokens"`
	} `yaml:"auth"`

	RateLimit struct {
		Capacity   int `yaml:"capacity"`
		RefillRate int `yaml:"refillRate"`
	} `yaml:"rateLimit"`
}

// Load reads config.yaml; a .env file, when present, is loaded first so
// ${ENV} style secrets can stay out of the yaml.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "mysql"
	}
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return &cfg, nil
}

// AssessTimeout bounds the reasoning-service call.
func (c *Config) AssessTimeout() time.Duration {
	if c.OpenAI.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.OpenAI.TimeoutSeconds) * time.Second
}

// MySQLDSN builds the MySQL connection string
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds the PostgreSQL connection string
func (c *Config) PostgresDSN() string {
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		sslMode,
	)
}
