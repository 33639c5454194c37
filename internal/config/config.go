package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr             string        `env:"ADDR,default=:8080"`
	LogLevel         string        `env:"LOG_LEVEL,default=INFO"`
	HistorySize      int           `env:"HISTORY_SIZE,default=50"`
	ReceiptCapacity  int           `env:"RECEIPT_CAPACITY,default=10000"`
	OfflineRetention time.Duration `env:"OFFLINE_RETENTION,default=10m"`
	PruneInterval    time.Duration `env:"PRUNE_INTERVAL,default=1m"`
	SendBuffer       int           `env:"SEND_BUFFER,default=256"`
	MaxImageChars    int           `env:"MAX_IMAGE_CHARS,default=1000000"`

	ResumeSecret   string        `env:"RESUME_SECRET"`
	ResumeTokenTTL time.Duration `env:"RESUME_TOKEN_TTL,default=24h"`

	CensoredWords string `env:"CENSORED_WORDS"`
	CensorChar    string `env:"CENSOR_CHAR,default=*"`

	RedisAddr          string `env:"REDIS_ADDR"`
	RedisChannelPrefix string `env:"REDIS_CHANNEL_PREFIX,default=relay:room:"`
	MirrorBuffer       int    `env:"MIRROR_BUFFER,default=1024"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.HistorySize <= 0 {
		errs = append(errs, fmt.Errorf("HISTORY_SIZE must be positive, got %d", c.HistorySize))
	}
	if c.ReceiptCapacity < c.HistorySize {
		errs = append(errs, fmt.Errorf("RECEIPT_CAPACITY (%d) must be at least HISTORY_SIZE (%d)", c.ReceiptCapacity, c.HistorySize))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("SEND_BUFFER must be positive, got %d", c.SendBuffer))
	}
	if c.MaxImageChars <= 0 {
		errs = append(errs, fmt.Errorf("MAX_IMAGE_CHARS must be positive, got %d", c.MaxImageChars))
	}
	if c.OfflineRetention <= 0 || c.PruneInterval <= 0 || c.ResumeTokenTTL <= 0 {
		errs = append(errs, errors.New("OFFLINE_RETENTION, PRUNE_INTERVAL and RESUME_TOKEN_TTL must be positive"))
	}
	if _, err := c.CensorRune(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Words splits CENSORED_WORDS on commas.
func (c Config) Words() []string {
	if strings.TrimSpace(c.CensoredWords) == "" {
		return nil
	}
	return strings.Split(c.CensoredWords, ",")
}

func (c Config) CensorRune() (rune, error) {
	r := []rune(c.CensorChar)
	if len(r) != 1 {
		return 0, fmt.Errorf("CENSOR_CHAR must be a single character, got %q", c.CensorChar)
	}
	return r[0], nil
}
