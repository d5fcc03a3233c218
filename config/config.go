package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port          string         `yaml:"port"`
	SessionSecret string         `yaml:"session_secret"`
	BaseURL       string         `yaml:"base_url"`
	Database      DatabaseConfig `yaml:"database"`
	AnalyticsDB   string         `yaml:"analytics_db"`
	BcryptCost    int            `yaml:"bcrypt_cost"`
	SMTP          SMTPConfig     `yaml:"smtp"`
	FakeEmail     bool           `yaml:"fake_email"`
	TemplateGlob  string         `yaml:"template_glob"`
	StaticDir     string         `yaml:"static_dir"`
	SecureCookies bool           `yaml:"secure_cookies"`
	AdminEmail    string         `yaml:"admin_email"`
}

type DatabaseConfig struct {
	Driver        string `yaml:"driver"` // sqlite or mongo
	SQLitePath    string `yaml:"sqlite_path"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

var ErrNoSessionSecret = errors.New("SESSION_SECRET not set")

func Default() *Config {
	return &Config{
		Port:    "8080",
		BaseURL: "http://localhost:8080",
		Database: DatabaseConfig{
			Driver:        "sqlite",
			SQLitePath:    "tinyclassified.db",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "tiny_classified",
		},
		BcryptCost:   10,
		SMTP:         SMTPConfig{Port: 587},
		TemplateGlob: "*/views/*.html",
		StaticDir:    "./static",
	}
}

// Load builds the configuration from defaults, an optional YAML file at path
// and the environment (a local .env file included), in that order.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.SessionSecret = getEnv("SESSION_SECRET", c.SessionSecret)
	c.BaseURL = getEnv("BASE_URL", c.BaseURL)
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.SQLitePath = getEnv("SQLITE_DB", c.Database.SQLitePath)
	c.Database.MongoURI = getEnv("MONGO_URI", c.Database.MongoURI)
	c.Database.MongoDatabase = getEnv("MONGO_DATABASE", c.Database.MongoDatabase)
	c.AnalyticsDB = getEnv("ANALYTICS_DB", c.AnalyticsDB)
	c.BcryptCost = getEnvInt("BCRYPT_COST", c.BcryptCost)
	c.SMTP.Host = getEnv("SMTP_HOST", c.SMTP.Host)
	c.SMTP.Port = getEnvInt("SMTP_PORT", c.SMTP.Port)
	c.SMTP.User = getEnv("SMTP_USER", c.SMTP.User)
	c.SMTP.Password = getEnv("SMTP_PASSWORD", c.SMTP.Password)
	c.SMTP.From = getEnv("SMTP_FROM", c.SMTP.From)
	c.FakeEmail = getEnvBool("FAKE_EMAIL", c.FakeEmail)
	c.TemplateGlob = getEnv("TEMPLATE_GLOB", c.TemplateGlob)
	c.StaticDir = getEnv("STATIC_DIR", c.StaticDir)
	c.SecureCookies = getEnvBool("SECURE_COOKIES", c.SecureCookies)
	c.AdminEmail = getEnv("ADMIN_EMAIL", c.AdminEmail)
}

func (c *Config) Validate() error {
	if c.SessionSecret == "" {
		return ErrNoSessionSecret
	}
	switch c.Database.Driver {
	case "sqlite", "mongo":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
