package internal

import (
	"fmt"
	"strings"
	"time"
)

const (
	StoreBadger = "badger"
	StoreSQLite = "sqlite"

	FanoutSync  = "sync"
	FanoutAsync = "async"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL,default=INFO"`
	Host     string `env:"HOST,default=localhost"`
	Port     int    `env:"PORT,default=8080"`

	StoreDriver    string `env:"STORE_DRIVER,default=badger"`
	BadgerFilepath string `env:"BADGER_FILEPATH,default=./data/badger"`
	SQLiteDSN      string `env:"SQLITE_DSN,default=./data/chat.db"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,default=./data/bluge"`
	SearchEnabled  bool   `env:"SEARCH_ENABLED,default=false"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	FanoutMode           string        `env:"FANOUT_MODE,default=sync"`
	FanoutShards         int           `env:"FANOUT_SHARDS,default=8"`
	FanoutBufferSize     int           `env:"FANOUT_BUFFER_SIZE,default=256"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	SendTimeout          time.Duration `env:"SEND_TIMEOUT,default=2s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`

	ModerationEnabled         bool   `env:"MODERATION_ENABLED,default=false"`
	ModerationWords           string `env:"MODERATION_WORDS"`
	ModerationWordsDir        string `env:"MODERATION_WORDS_DIR"`
	ModerationCharReplacement string `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`

	RetentionPeriod   time.Duration `env:"RETENTION_PERIOD,default=0s"`
	RetentionInterval time.Duration `env:"RETENTION_INTERVAL,default=1h"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Validate rejects combinations the server can't start with.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreBadger, StoreSQLite:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreBadger, StoreSQLite, c.StoreDriver)
	}
	switch c.FanoutMode {
	case FanoutSync, FanoutAsync:
	default:
		return fmt.Errorf("FANOUT_MODE must be %q or %q, got %q", FanoutSync, FanoutAsync, c.FanoutMode)
	}
	if c.FanoutMode == FanoutAsync && c.FanoutShards <= 0 {
		return fmt.Errorf("FANOUT_SHARDS must be positive, got %d", c.FanoutShards)
	}
	if c.RetentionPeriod > 0 && c.RetentionInterval <= 0 {
		return fmt.Errorf("RETENTION_INTERVAL must be positive when RETENTION_PERIOD is set")
	}
	if c.ModerationEnabled {
		if _, err := CharacterRune(c.ModerationCharReplacement); err != nil {
			return err
		}
	}
	return nil
}

// Words splits MODERATION_WORDS on commas.
func (c Config) Words() []string {
	var res []string
	for _, w := range strings.Split(c.ModerationWords, ",") {
		if w = strings.TrimSpace(w); w != "" {
			res = append(res, w)
		}
	}
	return res
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"MODERATION_CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
