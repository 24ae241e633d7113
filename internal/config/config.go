package config

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/Alturino/storefront/internal/log"
)

type Application struct {
	Env         string   `mapstructure:"env"          json:"env"`
	Host        string   `mapstructure:"host"         json:"host"`
	LogDir      string   `mapstructure:"log_dir"      json:"log_dir"`
	CorsOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	Port        int      `mapstructure:"port"         json:"port"`
}

type Cache struct {
	Host     string `mapstructure:"host"     json:"host"`
	Password string `mapstructure:"password" json:"-"`
	Database int    `mapstructure:"database" json:"database"`
	Port     uint16 `mapstructure:"port"     json:"port"`
}

type Otel struct {
	Host    string `mapstructure:"host"    json:"host"`
	Port    int    `mapstructure:"port"    json:"port"`
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
}

type Catalog struct {
	BaseURL            string        `mapstructure:"base_url"             json:"base_url"`
	Timeout            time.Duration `mapstructure:"timeout"              json:"timeout"`
	RateLimit          float64       `mapstructure:"rate_limit"           json:"rate_limit"`
	RateBurst          int           `mapstructure:"rate_burst"           json:"rate_burst"`
	BreakerMaxFailures uint32        `mapstructure:"breaker_max_failures" json:"breaker_max_failures"`
	BreakerOpenTimeout time.Duration `mapstructure:"breaker_open_timeout" json:"breaker_open_timeout"`
}

type Cart struct {
	Storage   string `mapstructure:"storage"   json:"storage"`
	Directory string `mapstructure:"directory" json:"directory"`
}

type Checkout struct {
	Shipping decimal.Decimal `mapstructure:"shipping" json:"shipping"`
	TaxRate  decimal.Decimal `mapstructure:"tax_rate" json:"tax_rate"`
}

type Session struct {
	SecretKey string        `mapstructure:"secret_key" json:"-"`
	TTL       time.Duration `mapstructure:"ttl"        json:"ttl"`
	SweepTick time.Duration `mapstructure:"sweep_tick" json:"sweep_tick"`
}

type Notification struct {
	Driver  string `mapstructure:"driver"  json:"driver"`
	Channel string `mapstructure:"channel" json:"channel"`
}

type Config struct {
	Application  `mapstructure:"application"  json:"application"`
	Cache        `mapstructure:"cache"        json:"cache"`
	Otel         `mapstructure:"otel"         json:"otel"`
	Catalog      `mapstructure:"catalog"      json:"catalog"`
	Cart         `mapstructure:"cart"         json:"cart"`
	Checkout     `mapstructure:"checkout"     json:"checkout"`
	Session      `mapstructure:"session"      json:"session"`
	Notification `mapstructure:"notification" json:"notification"`
}

var (
	once   sync.Once
	config *Config
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("application.env", "production")
	v.SetDefault("application.host", "0.0.0.0")
	v.SetDefault("application.port", 8080)
	v.SetDefault("application.log_dir", "/var/log")
	v.SetDefault("application.cors_origins", []string{"*"})

	v.SetDefault("cache.host", "localhost")
	v.SetDefault("cache.port", 6379)
	v.SetDefault("cache.database", 0)

	v.SetDefault("otel.host", "otel-collector")
	v.SetDefault("otel.port", 4317)
	v.SetDefault("otel.enabled", false)

	v.SetDefault("catalog.base_url", "https://fakestoreapi.com")
	v.SetDefault("catalog.timeout", 5*time.Second)
	v.SetDefault("catalog.rate_limit", 10.0)
	v.SetDefault("catalog.rate_burst", 5)
	v.SetDefault("catalog.breaker_max_failures", 5)
	v.SetDefault("catalog.breaker_open_timeout", 30*time.Second)

	v.SetDefault("cart.storage", "memory")
	v.SetDefault("cart.directory", "./data/carts")

	v.SetDefault("checkout.shipping", "10")
	v.SetDefault("checkout.tax_rate", "0.10")

	v.SetDefault("session.secret_key", "")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.sweep_tick", time.Minute)

	v.SetDefault("notification.driver", "log")
	v.SetDefault("notification.channel", "notifications")
}

func decimalHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(decimal.Decimal{}) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return decimal.NewFromString(v)
		case float64:
			return decimal.NewFromFloat(v), nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		}
		return data, nil
	}
}

func randomSecretKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// Load reads env/<filename>.yaml (optional) and environment overrides such as
// CATALOG_BASE_URL into a fresh Config.
func Load(c context.Context, filename string) (Config, error) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "config Load").
		Str("filename", filename).
		Logger()

	v := viper.New()
	setDefaults(v)
	v.SetConfigName(filename)
	v.AddConfigPath("./env")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	logger = logger.With().Str(log.KeyProcess, "reading config").Logger()
	logger.Info().Msg("reading config")
	err := v.ReadInConfig()
	if err != nil {
		notFound := viper.ConfigFileNotFoundError{}
		if !errors.As(err, &notFound) {
			err = fmt.Errorf("error when reading config with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
			return Config{}, err
		}
		logger.Warn().Msg("config file not found, using defaults and environment")
	} else {
		logger.Info().Msg("read config")
	}

	logger = logger.With().Str(log.KeyProcess, "unmarshaling config").Logger()
	logger.Info().Msg("unmarshaling config")
	cfg := Config{}
	err = v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		decimalHook(),
	)))
	if err != nil {
		err = fmt.Errorf("error unmarshaling config with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return Config{}, err
	}
	logger.Info().Any(log.KeyConfig, cfg).Msg("unmarshaled config")

	if cfg.Session.SecretKey == "" {
		logger = logger.With().Str(log.KeyProcess, "generating session secret key").Logger()
		logger.Warn().Msg("session.secret_key is empty, generating one for this process")
		secretKey, err := randomSecretKey()
		if err != nil {
			err = fmt.Errorf("failed generating session secret key with error=%w", err)
			logger.Error().Err(err).Msg(err.Error())
			return Config{}, err
		}
		cfg.Session.SecretKey = secretKey
		logger.Warn().Msg("generated session secret key, tokens will not survive a restart")
	}

	return cfg, nil
}

// InitConfig loads the config once per process and exits on failure.
func InitConfig(c context.Context, filename string) *Config {
	once.Do(func() {
		cfg, err := Load(c, filename)
		if err != nil {
			zerolog.Ctx(c).Fatal().Err(err).Msg(err.Error())
		}
		config = &cfg
	})
	return config
}
