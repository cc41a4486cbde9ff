package config

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. RS3CALC_WORKERS.
const EnvPrefix = "RS3CALC"

type Config struct {
	Addr string `mapstructure:"addr" default:":5000" description:"address the HTTP server listens on"`

	CatalogueURL      string        `mapstructure:"catalogue-url" default:"https://secure.runescape.com/m=itemdb_rs/api/catalogue" description:"base URL of the Grand Exchange catalogue API"`
	MaxCategory       int           `mapstructure:"max-category" default:"37" description:"highest catalogue category crawled"`
	PageSize          int           `mapstructure:"page-size" default:"12" description:"items per catalogue page"`
	RefreshInterval   time.Duration `mapstructure:"refresh-interval" default:"12h" description:"time between index rebuilds"`
	RequestTimeout    time.Duration `mapstructure:"request-timeout" default:"10s" description:"timeout of a single catalogue request"`
	Workers           int           `mapstructure:"workers" default:"1" description:"catalogue pages fetched concurrently during a build"`
	RequestsPerSecond float64       `mapstructure:"requests-per-second" default:"0" description:"cap on catalogue requests per second, 0 for none"`

	LogCapacity   int    `mapstructure:"log-capacity" default:"500" description:"log lines kept for the operator log view"`
	LogLevel      string `mapstructure:"log-level" default:"info" description:"log level: debug, info, warn, error"`
	MinTermLength int    `mapstructure:"min-term-length" default:"3" description:"shortest term answered by item suggestions, 0 for any"`
	SuggestLimit  int    `mapstructure:"suggest-limit" default:"50" description:"maximum item suggestions returned"`

	PriceCacheSize int           `mapstructure:"price-cache-size" default:"1024" description:"item prices kept in memory"`
	PriceCacheTTL  time.Duration `mapstructure:"price-cache-ttl" default:"5m" description:"how long a cached item price is served"`
	HistorySize    int           `mapstructure:"history-size" default:"20" description:"past builds kept for the builds endpoint"`
}

var durationType = reflect.TypeOf(time.Duration(0))

// RegisterFlags adds one flag per Config field, named after its mapstructure
// tag and defaulted from its default tag.
func RegisterFlags(flags *pflag.FlagSet) {
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := field.Tag.Get("mapstructure")
		def := field.Tag.Get("default")
		desc := field.Tag.Get("description")

		switch {
		case field.Type == durationType:
			d, _ := time.ParseDuration(def)
			flags.Duration(name, d, desc)
		case field.Type.Kind() == reflect.String:
			flags.String(name, def, desc)
		case field.Type.Kind() == reflect.Int:
			v, _ := strconv.Atoi(def)
			flags.Int(name, v, desc)
		case field.Type.Kind() == reflect.Float64:
			v, _ := strconv.ParseFloat(def, 64)
			flags.Float64(name, v, desc)
		case field.Type.Kind() == reflect.Bool:
			v, _ := strconv.ParseBool(def)
			flags.Bool(name, v, desc)
		}
	}
}

// Load resolves the configuration from, in order of precedence, explicitly
// set flags, RS3CALC_* environment variables, an optional rs3calc.yaml in
// configDir, and the flag defaults.
func Load(flags *pflag.FlagSet, configDir string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configDir != "" {
		v.SetConfigType("yaml")
		v.SetConfigName("rs3calc")
		v.AddConfigPath(configDir)
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else {
			slog.Info("config file loaded", slog.String("path", v.ConfigFileUsed()))
		}
	}

	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with every field at its default.
func Default() *Config {
	fs := pflag.NewFlagSet("defaults", pflag.ContinueOnError)
	RegisterFlags(fs)
	cfg, err := Load(fs, "")
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.CatalogueURL) == "" {
		errs = append(errs, errors.New("catalogue-url is required"))
	}
	if c.MaxCategory < 0 {
		errs = append(errs, errors.New("max-category must not be negative"))
	}
	if c.PageSize <= 0 {
		errs = append(errs, errors.New("page-size must be positive"))
	}
	if c.RefreshInterval <= 0 {
		errs = append(errs, errors.New("refresh-interval must be positive"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request-timeout must be positive"))
	}
	if c.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests-per-second must not be negative"))
	}
	if c.LogCapacity <= 0 {
		errs = append(errs, errors.New("log-capacity must be positive"))
	}
	if c.MinTermLength < 0 {
		errs = append(errs, errors.New("min-term-length must not be negative"))
	}
	if c.SuggestLimit <= 0 {
		errs = append(errs, errors.New("suggest-limit must be positive"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log-level: %w", err)
	}
	return l, nil
}
