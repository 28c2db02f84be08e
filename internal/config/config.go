package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every setting the service reads from the environment.
type Config struct {
	Port string

	DBDriver    string
	DatabaseURL string

	JWTSecret    string
	TokenExpiry  time.Duration
	CookieDomain string

	RateLimit       int
	RateLimitWindow time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	MailpitHost  string
	MailpitPort  int
	MailFrom     string
	MailFromName string
	MailTimeout  time.Duration

	AlertThreshold     float64
	AlertRetryInterval time.Duration
	AlertMaxAttempts   int

	AdminPassword string

	AllowedOrigins []string

	LogLevel  string
	LogFormat string

	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
}

var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

// Load reads an optional dotenv file and then the process environment.
// An empty envFile means ".env" in the working directory, which may be absent.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Port:               v.GetString("port"),
		DBDriver:           strings.ToLower(v.GetString("db_driver")),
		DatabaseURL:        v.GetString("database_url"),
		JWTSecret:          v.GetString("jwt_secret"),
		TokenExpiry:        v.GetDuration("token_expiry"),
		CookieDomain:       v.GetString("cookie_domain"),
		RateLimit:          v.GetInt("rate_limit"),
		RateLimitWindow:    v.GetDuration("rate_limit_window"),
		RedisAddr:          v.GetString("redis_addr"),
		RedisPassword:      v.GetString("redis_password"),
		RedisDB:            v.GetInt("redis_db"),
		MailpitHost:        v.GetString("mailpit_host"),
		MailpitPort:        v.GetInt("mailpit_port"),
		MailFrom:           v.GetString("mail_from"),
		MailFromName:       v.GetString("mail_from_name"),
		MailTimeout:        v.GetDuration("mail_timeout"),
		AlertThreshold:     v.GetFloat64("alert_threshold"),
		AlertRetryInterval: v.GetDuration("alert_retry_interval"),
		AlertMaxAttempts:   v.GetInt("alert_max_attempts"),
		AdminPassword:      v.GetString("admin_password"),
		LogLevel:           v.GetString("log_level"),
		LogFormat:          v.GetString("log_format"),
		MQTTBroker:         v.GetString("mqtt_broker"),
		MQTTClientID:       v.GetString("mqtt_client_id"),
		MQTTTopicPrefix:    v.GetString("mqtt_topic_prefix"),
		InfluxURL:          v.GetString("influx_url"),
		InfluxToken:        v.GetString("influx_token"),
		InfluxOrg:          v.GetString("influx_org"),
		InfluxBucket:       v.GetString("influx_bucket"),
	}

	cfg.AllowedOrigins = allowedOrigins(v.GetString("client_url"), v.GetString("allowed_origins"))

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "3000")
	v.SetDefault("db_driver", "postgres")
	v.SetDefault("token_expiry", 24*time.Hour)
	v.SetDefault("rate_limit", 150)
	v.SetDefault("rate_limit_window", time.Minute)
	v.SetDefault("redis_db", 0)
	v.SetDefault("mailpit_host", "localhost")
	v.SetDefault("mailpit_port", 8025)
	v.SetDefault("mail_from", "alerts@breathe.local")
	v.SetDefault("mail_from_name", "Breathe Alerts")
	v.SetDefault("mail_timeout", 10*time.Second)
	v.SetDefault("alert_threshold", 800.0)
	v.SetDefault("alert_retry_interval", time.Minute)
	v.SetDefault("alert_max_attempts", 5)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("mqtt_client_id", "breathe-api")
	v.SetDefault("mqtt_topic_prefix", "sensors")
}

func allowedOrigins(clientURL, extra string) []string {
	origins := make([]string, len(defaultOrigins))
	copy(origins, defaultOrigins)

	if clientURL != "" {
		origins = append(origins, clientURL)
	}

	for _, origin := range strings.Split(extra, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}

	return origins
}

// Validate reports the settings serve cannot run without.
func (c *Config) Validate() error {
	var missing []string

	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	switch c.DBDriver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	if c.TokenExpiry <= 0 {
		return errors.New("TOKEN_EXPIRY must be positive")
	}

	if c.RateLimit <= 0 || c.RateLimitWindow <= 0 {
		return errors.New("RATE_LIMIT and RATE_LIMIT_WINDOW must be positive")
	}

	return nil
}

// MailpitURL is the base URL of the mail relay HTTP API.
func (c *Config) MailpitURL() string {
	return fmt.Sprintf("http://%s:%d", c.MailpitHost, c.MailpitPort)
}
