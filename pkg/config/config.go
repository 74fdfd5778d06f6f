package config

import (
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/iancoleman/strcase"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/shishobooks/comicseed/pkg/errcodes"
)

const defaultConfigFile = "/config/comicseed.yaml"

type Config struct {
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" default:"5s"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" default:"5"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" default:"2s"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseFilePath          string        `koanf:"database_file_path" validate:"required"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries" default:"5"`

	// Pipeline
	BatchSize      int  `koanf:"batch_size" default:"100" validate:"min=1,max=1000"`
	Concurrency    int  `koanf:"concurrency" default:"5" validate:"min=1"`
	DownloadImages bool `koanf:"download_images" default:"true"`

	// Images
	AssetDir         string        `koanf:"asset_dir" default:"./tmp/assets"`
	AssetMaxPixels   int           `koanf:"asset_max_pixels" default:"40000000" validate:"min=1"`
	AssetMaxWidth    int           `koanf:"asset_max_width" default:"800"`
	AssetTimeout     time.Duration `koanf:"asset_timeout" default:"20s"`
	AssetUserAgent   string        `koanf:"asset_user_agent" default:"comicseed/1.0"`
	PlaceholderCover string        `koanf:"placeholder_cover" default:"/images/placeholder.jpg"`
}

// New builds the config from defaults, then the YAML file at CONFIG_FILE (if
// it exists), then environment variables. Later sources win.
func New() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = defaultConfigFile
	}
	if _, err := os.Stat(configFile); err == nil {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", configFile)
		}
	}

	known := knownKeys()
	err := k.Load(env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if _, ok := known[key]; !ok {
			return ""
		}
		return key
	}), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewForTest returns a config pointing at an in-memory database with image
// downloads disabled.
func NewForTest() *Config {
	cfg := &Config{}
	_ = defaults.Set(cfg)
	cfg.DatabaseFilePath = ":memory:"
	cfg.DatabaseConnectRetryCount = 1
	cfg.DatabaseConnectRetryDelay = 0
	cfg.DownloadImages = false
	return cfg
}

func validate(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.WithStack(err)
	}
	for _, fe := range verrs {
		key := toSnakeCase(fe.StructField())
		if fe.Tag() == "required" {
			return errcodes.MissingConfig(strings.ToUpper(key), key)
		}
		return errors.Errorf("invalid config value for %s: %v (%s)", key, fe.Value(), fe.Tag())
	}
	return errors.WithStack(err)
}

// knownKeys lists the koanf keys of every Config field so unrelated
// environment variables are ignored.
func knownKeys() map[string]struct{} {
	keys := map[string]struct{}{}
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("koanf")
		if tag == "" {
			tag = toSnakeCase(t.Field(i).Name)
		}
		keys[tag] = struct{}{}
	}
	return keys
}

func toSnakeCase(s string) string {
	return strcase.ToSnake(s)
}
