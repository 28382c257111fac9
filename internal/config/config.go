// Package config builds the immutable service configuration from the
// environment. A Config is loaded once at startup and passed by value into
// every component; nothing reads the environment after Load returns.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vibetom/boystats/internal/model"
)

const (
	DefaultRegionURL   = "https://americas.api.riotgames.com"
	DefaultPlatformURL = "https://na1.api.riotgames.com"

	// MaxPages caps the deeper discovery rounds per (player, queue) pair.
	MaxPages = 20
)

// DefaultRoster is the fixed set of tracked players.
var DefaultRoster = Roster{
	{DisplayName: "SomeBees", RegionTag: "NA1"},
	{DisplayName: "BananaJamHands", RegionTag: "NA1"},
	{DisplayName: "Storklord", RegionTag: "NA1"},
	{DisplayName: "pRiNcEsSFiStY", RegionTag: "NA1"},
	{DisplayName: "Alessio", RegionTag: "NA1"},
}

// DefaultQueues: Ranked Solo, Ranked Flex, Normal Draft, ARAM.
var DefaultQueues = []int{420, 440, 400, 450}

// Roster is an ordered list of tracked players.
type Roster []model.PlayerIdentity

// Names returns the display names in roster order.
func (r Roster) Names() []string {
	names := make([]string, len(r))
	for i, p := range r {
		names[i] = p.DisplayName
	}
	return names
}

// Contains reports whether name is a roster display name.
func (r Roster) Contains(name string) bool {
	for _, p := range r {
		if p.DisplayName == name {
			return true
		}
	}
	return false
}

// Config is the full service configuration.
type Config struct {
	Port string

	RiotAPIKey      string
	RiotRegionURL   string
	RiotPlatformURL string

	GeminiAPIKey string
	GeminiModels []string

	Roster Roster
	Queues []int

	DiscoveryPages  int           // pages fetched after page 0 per (player, queue)
	DiscoveryBudget time.Duration // wall-clock ceiling for discovery

	FetchBatchSize  int
	FetchBatchDelay time.Duration
	FetchLimit      int // ids processed per match-details call
	FetchBudget     time.Duration

	RefreshBudget time.Duration // whole-run ceiling, below the refresh route timeout

	RetryMaxAttempts  int
	RetryDefaultAfter time.Duration

	MaxBackups     int
	AskMatchWindow int

	DatabaseURL string
	RedisURL    string
}

// Load reads a .env file if one is present and then builds a Config from the
// process environment.
func Load() (Config, error) {
	for _, path := range []string{".env", "../.env"} {
		if err := godotenv.Load(path); err == nil {
			slog.Info("loaded .env", "path", path)
			break
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config using getenv for lookups.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:            orDefault(getenv("PORT"), "8080"),
		RiotAPIKey:      strings.TrimSpace(getenv("RIOT_API_KEY")),
		RiotRegionURL:   strings.TrimRight(orDefault(getenv("RIOT_REGION_URL"), DefaultRegionURL), "/"),
		RiotPlatformURL: strings.TrimRight(orDefault(getenv("RIOT_PLATFORM_URL"), DefaultPlatformURL), "/"),
		GeminiAPIKey:    strings.TrimSpace(getenv("GEMINI_API_KEY")),
		GeminiModels:    splitList(orDefault(getenv("GEMINI_MODELS"), "gemini-2.5-flash,gemini-2.0-flash,gemini-flash-latest")),
		DatabaseURL:     getenv("DATABASE_URL"),
		RedisURL:        getenv("REDIS_URL"),
		Roster:          slices.Clone(DefaultRoster),
		Queues:          slices.Clone(DefaultQueues),
	}

	if raw := getenv("BOYSTATS_ROSTER"); raw != "" {
		roster, err := ParseRoster(raw)
		if err != nil {
			return Config{}, err
		}
		cfg.Roster = roster
	}
	if raw := getenv("BOYSTATS_QUEUES"); raw != "" {
		queues, err := ParseQueues(raw)
		if err != nil {
			return Config{}, err
		}
		cfg.Queues = queues
	}

	var err error
	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"DISCOVERY_PAGES", 4, &cfg.DiscoveryPages},
		{"FETCH_BATCH_SIZE", 5, &cfg.FetchBatchSize},
		{"FETCH_LIMIT", 15, &cfg.FetchLimit},
		{"RETRY_MAX_ATTEMPTS", 3, &cfg.RetryMaxAttempts},
		{"MAX_BACKUPS", 3, &cfg.MaxBackups},
		{"ASK_MATCH_WINDOW", 300, &cfg.AskMatchWindow},
	}
	for _, v := range ints {
		if *v.dest, err = intEnv(getenv, v.key, v.def); err != nil {
			return Config{}, err
		}
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"DISCOVERY_BUDGET_MS", 8500 * time.Millisecond, &cfg.DiscoveryBudget},
		{"FETCH_BATCH_DELAY_MS", 50 * time.Millisecond, &cfg.FetchBatchDelay},
		{"FETCH_BUDGET_MS", 25 * time.Second, &cfg.FetchBudget},
		{"REFRESH_BUDGET_MS", 100 * time.Second, &cfg.RefreshBudget},
		{"RETRY_DEFAULT_AFTER_MS", 2 * time.Second, &cfg.RetryDefaultAfter},
	}
	for _, v := range durations {
		ms, err := intEnv(getenv, v.key, int(v.def/time.Millisecond))
		if err != nil {
			return Config{}, err
		}
		*v.dest = time.Duration(ms) * time.Millisecond
	}

	cfg.DiscoveryPages = ClampPages(cfg.DiscoveryPages)
	cfg.FetchBatchSize = ClampBatchSize(cfg.FetchBatchSize)
	if cfg.RetryMaxAttempts < 1 {
		cfg.RetryMaxAttempts = 1
	}
	if cfg.MaxBackups < 1 {
		cfg.MaxBackups = 1
	}
	return cfg, nil
}

// ParseRoster parses "Name#TAG,Name#TAG". A missing tag defaults to NA1.
func ParseRoster(raw string) (Roster, error) {
	var roster Roster
	for _, entry := range splitList(raw) {
		name, tag, found := strings.Cut(entry, "#")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("config: invalid roster entry %q", entry)
		}
		if !found || strings.TrimSpace(tag) == "" {
			tag = "NA1"
		}
		roster = append(roster, model.PlayerIdentity{DisplayName: name, RegionTag: strings.TrimSpace(tag)})
	}
	if len(roster) == 0 {
		return nil, fmt.Errorf("config: empty roster")
	}
	return roster, nil
}

// ParseQueues parses a comma-separated list of queue ids, skipping entries
// that are not integers.
func ParseQueues(raw string) ([]int, error) {
	var queues []int
	for _, s := range splitList(raw) {
		q, err := strconv.Atoi(s)
		if err != nil {
			continue
		}
		queues = append(queues, q)
	}
	if len(queues) == 0 {
		return nil, fmt.Errorf("config: no valid queue ids in %q", raw)
	}
	return queues, nil
}

// ClampPages bounds a deeper-page count to [0, MaxPages].
func ClampPages(n int) int {
	switch {
	case n < 0:
		return 0
	case n > MaxPages:
		return MaxPages
	}
	return n
}

// ClampBatchSize bounds the detail batch size to [2, 10].
func ClampBatchSize(n int) int {
	switch {
	case n < 2:
		return 2
	case n > 10:
		return 10
	}
	return n
}

func intEnv(getenv func(string) string, key string, def int) (int, error) {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
