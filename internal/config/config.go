// Package config loads the service configuration.
//
// Values are layered, lowest precedence first: flag defaults, the YAML file
// named by --config, KOTOBA_* environment variables (a .env file in the
// working directory is read first), and finally flags set on the command line.
// Nested keys use "__" in environment names: KOTOBA_DB__DSN sets db.dsn.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "KOTOBA_"

// Config is the validated service configuration.
type Config struct {
	HTTP      HTTP      `koanf:"http"`
	DB        DB        `koanf:"db"`
	Sync      Sync      `koanf:"sync"`
	Diversity Diversity `koanf:"diversity"`
	Log       Log       `koanf:"log"`

	// One-shot commands; only meaningful as flags.
	SyncOnce  bool   `koanf:"sync-once"`
	AddSource string `koanf:"add-source"`
	Learner   string `koanf:"learner" validate:"required_with=AddSource"`
	Deck      string `koanf:"deck"`
}

type HTTP struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"required"`
}

type DB struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite pgx"`
	DSN    string `koanf:"dsn" validate:"required"`
}

type Sync struct {
	ReposDir string `koanf:"repos_dir" validate:"required"`
	// Interval between periodic syncs of all sources. Zero disables them.
	Interval time.Duration `koanf:"interval"`
}

type Diversity struct {
	WindowSize int     `koanf:"window_size" validate:"gte=1"`
	MinSamples int     `koanf:"min_samples" validate:"gte=1"`
	WarnBelow  float64 `koanf:"warn_below" validate:"gte=0,lte=1"`
	NoteBelow  float64 `koanf:"note_below" validate:"gte=0,lte=1,gtefield=WarnBelow"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// Flags returns the command-line flag set with every key's default.
func Flags() *pflag.FlagSet {
	f := pflag.NewFlagSet("kotoba", pflag.ContinueOnError)
	f.String("config", "", "path to a YAML config file")

	f.String("http.addr", ":8080", "HTTP listen address")
	f.Duration("http.shutdown_timeout", 10*time.Second, "graceful shutdown timeout")
	f.String("db.driver", "sqlite", "database driver: sqlite or pgx")
	f.String("db.dsn", "kotoba.db", "database DSN (file path for sqlite)")
	f.String("sync.repos_dir", "repos", "directory for git source checkouts")
	f.Duration("sync.interval", 0, "interval between source syncs, 0 disables")
	f.Int("diversity.window_size", 10, "answers remembered per grade")
	f.Int("diversity.min_samples", 4, "answers needed before guidance is given")
	f.Float64("diversity.warn_below", 0.5, "diversity score below which a warning is given")
	f.Float64("diversity.note_below", 0.7, "diversity score below which a note is given")
	f.String("log.level", "info", "log level: debug, info, warn, error")
	f.String("log.format", "text", "log format: text or json")

	f.Bool("sync-once", false, "sync all sources and exit")
	f.String("add-source", "", "add a local path or git URL as a source and exit")
	f.String("learner", "", "learner ID for --add-source")
	f.String("deck", "", "deck name for cards imported by --add-source")
	return f
}

// Load parses args and builds the configuration.
func Load(args []string) (*Config, error) {
	f := Flags()
	if err := f.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flag defaults: %w", err)
	}

	if path, _ := f.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// posflag skips unchanged flags whose key is already set, so only flags
	// given explicitly override the file and environment here.
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration's constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// envKey maps KOTOBA_DIVERSITY__WINDOW_SIZE to diversity.window_size.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
