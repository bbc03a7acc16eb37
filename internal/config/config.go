package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/park285/cheese-lichess-bot/internal/domain"
)

const (
	DefaultBaseURL      = "https://lichess.org"
	DefaultMaxGames     = 4
	DefaultAbortGrace   = 30 * time.Second
	DefaultBookMaxDepth = 20
	DefaultMixedness    = 50
)

type AppConfig struct {
	LichessToken   string
	LichessBaseURL string

	StockfishPath  string
	EngineCapacity int

	RedisURL    string
	DatabaseURL string
	StatusAddr  string

	MaxConcurrentGames int
	AbortGrace         time.Duration

	// Profile is resolved once and shared read-only.
	Profile *domain.BotProfile
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		LichessBaseURL:     DefaultBaseURL,
		MaxConcurrentGames: DefaultMaxGames,
		AbortGrace:         DefaultAbortGrace,
	}

	profile := &domain.BotProfile{
		MaxBookDepth:  DefaultBookMaxDepth,
		BookMixedness: DefaultMixedness,
	}
	if path := strings.TrimSpace(os.Getenv("BOT_PROFILE")); path != "" {
		if err := loadProfileFile(path, profile); err != nil {
			return nil, err
		}
	}

	cfg.LichessToken = strings.TrimSpace(os.Getenv("LICHESS_TOKEN"))
	if v := strings.TrimSpace(os.Getenv("LICHESS_BASE_URL")); v != "" {
		cfg.LichessBaseURL = strings.TrimRight(v, "/")
	}

	cfg.StockfishPath = strings.TrimSpace(os.Getenv("STOCKFISH_PATH"))
	if v := strings.TrimSpace(os.Getenv("ENGINE_CAPACITY")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EngineCapacity = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ENGINE_OPTIONS")); v != "" {
		opts, err := ParseEngineOptions(v)
		if err != nil {
			return nil, err
		}
		if profile.SearchOptions == nil {
			profile.SearchOptions = make(map[string]string, len(opts))
		}
		for k, val := range opts {
			profile.SearchOptions[k] = val
		}
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.StatusAddr = strings.TrimSpace(os.Getenv("STATUS_ADDR"))

	if v := strings.TrimSpace(os.Getenv("MAX_CONCURRENT_GAMES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentGames = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ABORT_GRACE")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("ABORT_GRACE: invalid duration %q", v)
		}
		cfg.AbortGrace = d
	}

	if v := strings.TrimSpace(os.Getenv("BOT_NAME")); v != "" {
		profile.Name = v
	}
	applyPolicyEnv(&profile.Policy)

	if v := strings.TrimSpace(os.Getenv("BOOK_PATH")); v != "" {
		profile.BookPath = v
	}
	if v := strings.TrimSpace(os.Getenv("BOOK_MAX_DEPTH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			profile.MaxBookDepth = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("BOOK_MIXEDNESS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			profile.BookMixedness = n
		}
	}

	if cfg.LichessToken == "" {
		return nil, errors.New("LICHESS_TOKEN is required")
	}
	if strings.TrimSpace(profile.Name) == "" {
		return nil, errors.New("BOT_NAME is required")
	}
	if profile.BookMixedness < 0 || profile.BookMixedness > 100 {
		return nil, fmt.Errorf("BOOK_MIXEDNESS must be within 0..100, got %d", profile.BookMixedness)
	}

	cfg.Profile = profile
	return cfg, nil
}

// ParseEngineOptions reads "Name=Value;Name=Value". Option names may contain spaces.
func ParseEngineOptions(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("ENGINE_OPTIONS: malformed pair %q", part)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

func loadProfileFile(path string, profile *domain.BotProfile) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read bot profile: %w", err)
	}
	if err := yaml.Unmarshal(raw, profile); err != nil {
		return fmt.Errorf("parse bot profile %s: %w", path, err)
	}
	return nil
}

func applyPolicyEnv(p *domain.AcceptancePolicy) {
	flags := []struct {
		key string
		dst *bool
	}{
		{"ENABLE_CLASSICAL", &p.EnableClassical},
		{"ENABLE_RAPID", &p.EnableRapid},
		{"DISABLE_BLITZ", &p.DisableBlitz},
		{"DISABLE_BULLET", &p.DisableBullet},
		{"ENABLE_ULTRABULLET", &p.EnableUltraBullet},
		{"ENABLE_CASUAL", &p.EnableCasual},
		{"DISABLE_RATED", &p.DisableRated},
	}
	for _, f := range flags {
		if v := strings.TrimSpace(os.Getenv(f.key)); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*f.dst = b
			}
		}
	}
}
