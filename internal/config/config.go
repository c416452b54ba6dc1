package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	defaultConfigPath      = "config/config.yaml"
	defaultAddress         = ":4001"
	defaultDriver          = "mysql"
	defaultBackend         = "sql"
	defaultBus             = "local"
	defaultAccessTTL       = 2 * time.Hour
	defaultRefreshTTL      = 60 * 24 * time.Hour
	defaultResetTTL        = 15 * time.Minute
	defaultTokenTTLDays    = 60
	defaultCleanupInterval = 24 * time.Hour
	defaultLocalDir        = "uploads"
	defaultLocalURL        = "/static"
)

type Config struct {
	Server struct {
		Address        string   `yaml:"address"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Database struct {
		Driver       string `yaml:"driver"`
		URL          string `yaml:"url"`
		MaxOpenConns int    `yaml:"max_open_conns"`
		MaxIdleConns int    `yaml:"max_idle_conns"`
	} `yaml:"database"`
	Store struct {
		Backend string `yaml:"backend"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Auth struct {
		AccessSigningKey string        `yaml:"access_signing_key"`
		ResetSigningKey  string        `yaml:"reset_signing_key"`
		AccessTTL        time.Duration `yaml:"access_ttl"`
		RefreshTTL       time.Duration `yaml:"refresh_ttl"`
		ResetTTL         time.Duration `yaml:"reset_ttl"`
	} `yaml:"auth"`
	Firebase struct {
		CredentialsFile string `yaml:"credentials_file"`
		ProjectID       string `yaml:"project_id"`
		VerifyIDTokens  bool   `yaml:"verify_id_tokens"`
		FCM             bool   `yaml:"fcm"`
	} `yaml:"firebase"`
	Storage struct {
		S3 struct {
			Endpoint  string `yaml:"endpoint"`
			Region    string `yaml:"region"`
			Bucket    string `yaml:"bucket"`
			AccessKey string `yaml:"access_key"`
			SecretKey string `yaml:"secret_key"`
			PublicURL string `yaml:"public_url"`
		} `yaml:"s3"`
		LocalDir string `yaml:"local_dir"`
		LocalURL string `yaml:"local_url"`
	} `yaml:"storage"`
	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`
	Realtime struct {
		Bus string `yaml:"bus"`
	} `yaml:"realtime"`
	Notifications struct {
		TokenTTLDays    int           `yaml:"token_ttl_days"`
		CleanupInterval time.Duration `yaml:"cleanup_interval"`
	} `yaml:"notifications"`
}

// LoadConfig reads the file named by CONFIG_PATH (or the default path).
func LoadConfig() (Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}
	return Load(path)
}

// Load reads YAML from path, applies environment overrides and defaults, and
// validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Address = ":" + strings.TrimPrefix(v, ":")
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	readString("DATABASE_DRIVER", &cfg.Database.Driver)
	readString("DATABASE_URL", &cfg.Database.URL)
	readString("STORE_BACKEND", &cfg.Store.Backend)
	readString("REDIS_ADDR", &cfg.Redis.Addr)
	readString("REDIS_PASSWORD", &cfg.Redis.Password)
	readString("JWT_SIGNING_KEY", &cfg.Auth.AccessSigningKey)
	readString("RESET_SIGNING_KEY", &cfg.Auth.ResetSigningKey)
	readString("FIREBASE_CREDENTIALS", &cfg.Firebase.CredentialsFile)
	readString("FIREBASE_PROJECT_ID", &cfg.Firebase.ProjectID)
	readString("S3_ENDPOINT", &cfg.Storage.S3.Endpoint)
	readString("S3_REGION", &cfg.Storage.S3.Region)
	readString("S3_BUCKET", &cfg.Storage.S3.Bucket)
	readString("S3_ACCESS_KEY", &cfg.Storage.S3.AccessKey)
	readString("S3_SECRET_KEY", &cfg.Storage.S3.SecretKey)
	readString("S3_PUBLIC_URL", &cfg.Storage.S3.PublicURL)
	readString("SMTP_HOST", &cfg.SMTP.Host)
	readString("SMTP_USERNAME", &cfg.SMTP.Username)
	readString("SMTP_PASSWORD", &cfg.SMTP.Password)
	readString("SMTP_FROM", &cfg.SMTP.From)
	readString("REALTIME_BUS", &cfg.Realtime.Bus)

	if v, err := readIntEnv("REDIS_DB"); err != nil {
		return fmt.Errorf("parse REDIS_DB: %w", err)
	} else if v != nil {
		cfg.Redis.DB = *v
	}
	if v, err := readIntEnv("SMTP_PORT"); err != nil {
		return fmt.Errorf("parse SMTP_PORT: %w", err)
	} else if v != nil {
		cfg.SMTP.Port = *v
	}
	if v, err := readIntEnv("TOKEN_TTL_DAYS"); err != nil {
		return fmt.Errorf("parse TOKEN_TTL_DAYS: %w", err)
	} else if v != nil {
		cfg.Notifications.TokenTTLDays = *v
	}
	if v, err := readBoolEnv("FIREBASE_VERIFY_ID_TOKENS"); err != nil {
		return fmt.Errorf("parse FIREBASE_VERIFY_ID_TOKENS: %w", err)
	} else if v != nil {
		cfg.Firebase.VerifyIDTokens = *v
	}
	if v, err := readBoolEnv("FIREBASE_FCM"); err != nil {
		return fmt.Errorf("parse FIREBASE_FCM: %w", err)
	} else if v != nil {
		cfg.Firebase.FCM = *v
	}
	if v := os.Getenv("ACCESS_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse ACCESS_TOKEN_TTL: %w", err)
		}
		cfg.Auth.AccessTTL = d
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = defaultAddress
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = defaultDriver
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 10
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = defaultBackend
	}
	if cfg.Realtime.Bus == "" {
		cfg.Realtime.Bus = defaultBus
	}
	if cfg.Auth.AccessTTL == 0 {
		cfg.Auth.AccessTTL = defaultAccessTTL
	}
	if cfg.Auth.RefreshTTL == 0 {
		cfg.Auth.RefreshTTL = defaultRefreshTTL
	}
	if cfg.Auth.ResetTTL == 0 {
		cfg.Auth.ResetTTL = defaultResetTTL
	}
	if cfg.Storage.S3.Region == "" {
		cfg.Storage.S3.Region = "us-east-1"
	}
	if cfg.Storage.LocalDir == "" {
		cfg.Storage.LocalDir = defaultLocalDir
	}
	if cfg.Storage.LocalURL == "" {
		cfg.Storage.LocalURL = defaultLocalURL
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.Notifications.TokenTTLDays == 0 {
		cfg.Notifications.TokenTTLDays = defaultTokenTTLDays
	}
	if cfg.Notifications.CleanupInterval == 0 {
		cfg.Notifications.CleanupInterval = defaultCleanupInterval
	}
}

// Validate checks that the selected backends have what they need.
func (c Config) Validate() error {
	if c.Auth.AccessSigningKey == "" {
		return errors.New("config: auth.access_signing_key (JWT_SIGNING_KEY) is required")
	}
	if c.Auth.ResetSigningKey == "" {
		return errors.New("config: auth.reset_signing_key (RESET_SIGNING_KEY) is required")
	}
	if c.Auth.ResetSigningKey == c.Auth.AccessSigningKey {
		return errors.New("config: auth.reset_signing_key must differ from auth.access_signing_key")
	}
	switch c.Database.Driver {
	case "mysql", "pgx":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	switch c.Store.Backend {
	case "sql":
		if c.Database.URL == "" {
			return errors.New("config: database.url is required for the sql store")
		}
	case "firestore":
		if c.Firebase.ProjectID == "" && c.Firebase.CredentialsFile == "" {
			return errors.New("config: firebase project_id or credentials_file is required for the firestore store")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unsupported store backend %q", c.Store.Backend)
	}
	switch c.Realtime.Bus {
	case "local":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("config: redis.addr is required for the redis bus")
		}
	default:
		return fmt.Errorf("config: unsupported realtime bus %q", c.Realtime.Bus)
	}
	if c.Auth.AccessTTL < 0 || c.Auth.RefreshTTL < 0 || c.Auth.ResetTTL < 0 {
		return errors.New("config: token ttl must be positive")
	}
	return nil
}

// FirebaseEnabled reports whether any Firebase client has to be created.
func (c Config) FirebaseEnabled() bool {
	return c.Store.Backend == "firestore" || c.Firebase.VerifyIDTokens || c.Firebase.FCM
}

func readString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func readIntEnv(key string) (*int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func readBoolEnv(key string) (*bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
