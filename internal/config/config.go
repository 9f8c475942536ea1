package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig  BasicConfig               `json:"basic_config"`
	Databases    map[string]DatabaseConfig `json:"databases"`
	Redis        RedisConfig               `json:"redis"`
	Providers    map[string]ProviderConfig `json:"providers"`
	TextQueue    []string                  `json:"text_queue"`
	VisionQueue  []string                  `json:"vision_queue"`
	Music        MusicConfig               `json:"music"`
	Freemium     FreemiumConfig            `json:"freemium"`
	Conversation ConversationConfig        `json:"conversation"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	TrackBaseDir  string `json:"track_base_dir"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// ProviderConfig describes one text/vision backend. Kind selects the adapter
// (gemini, openai, claude); the key in the Providers map is the identifier
// referenced by the fallback queues.
type ProviderConfig struct {
	Kind    string `json:"kind"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

// MusicBackendConfig describes one music generation backend. Kind selects the
// adapter (replicate is async submit/poll, stable is a single long call).
// FilterMarkers is the per-backend content-filter classifier: substrings of
// the backend's error text that indicate a safety rejection.
type MusicBackendConfig struct {
	Kind                string   `json:"kind"`
	BaseURL             string   `json:"base_url"`
	Model               string   `json:"model"`
	APIKey              string   `json:"api_key"`
	MimeType            string   `json:"mime_type"`
	DurationSeconds     int      `json:"duration_seconds"`
	PollIntervalSeconds int      `json:"poll_interval_seconds"`
	PollMaxAttempts     int      `json:"poll_max_attempts"`
	FilterMarkers       []string `json:"filter_markers"`
}

type MusicConfig struct {
	Active           string                        `json:"active"`
	Backends         map[string]MusicBackendConfig `json:"backends"`
	MaxLibraryTracks int                           `json:"max_library_tracks"`
	MaxPromptChars   int                           `json:"max_prompt_chars"`
	EnhancePrompts   bool                          `json:"enhance_prompts"`
}

type FreemiumConfig struct {
	FreeSongsLimit      int  `json:"free_songs_limit"`
	CostPerSongCents    int  `json:"cost_per_song_cents"`
	PeriodSongLimit     int  `json:"period_song_limit"`
	PeriodDays          int  `json:"period_days"`
	UpgradePromptAt     int  `json:"upgrade_prompt_at"`
	AllowWithoutPayment bool `json:"allow_without_payment"`
}

type ConversationConfig struct {
	MaxMessages   int `json:"max_messages"`
	ContextWindow int `json:"context_window"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.ApplyDefaults()

	if len(cfg.Databases) == 0 {
		return nil, fmt.Errorf("at least one database must be configured")
	}
	for name, db := range cfg.Databases {
		if db.DSN != "" && db.DSN != ":memory:" && !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[name] = db
		}
	}

	return &cfg, nil
}

// ApplyDefaults fills unset fields with the stock limits.
func (cfg *Config) ApplyDefaults() {
	if cfg.BasicConfig.ServerAddress == "" {
		cfg.BasicConfig.ServerAddress = ":8090"
	}
	if cfg.BasicConfig.TrackBaseDir == "" {
		cfg.BasicConfig.TrackBaseDir = "./data/tracks"
	}
	if cfg.Conversation.MaxMessages <= 0 {
		cfg.Conversation.MaxMessages = 500
	}
	if cfg.Conversation.ContextWindow <= 0 {
		cfg.Conversation.ContextWindow = 50
	}
	if cfg.Freemium.FreeSongsLimit <= 0 {
		cfg.Freemium.FreeSongsLimit = 5
	}
	if cfg.Freemium.CostPerSongCents <= 0 {
		cfg.Freemium.CostPerSongCents = 2
	}
	if cfg.Freemium.PeriodSongLimit <= 0 {
		cfg.Freemium.PeriodSongLimit = 50
	}
	if cfg.Freemium.PeriodDays <= 0 {
		cfg.Freemium.PeriodDays = 30
	}
	if cfg.Freemium.UpgradePromptAt <= 0 {
		cfg.Freemium.UpgradePromptAt = cfg.Freemium.FreeSongsLimit - 1
	}
	if cfg.Music.MaxLibraryTracks <= 0 {
		cfg.Music.MaxLibraryTracks = 50
	}
	if cfg.Music.MaxPromptChars <= 0 {
		cfg.Music.MaxPromptChars = 600
	}
	for name, b := range cfg.Music.Backends {
		if b.PollIntervalSeconds <= 0 {
			b.PollIntervalSeconds = 2
		}
		if b.PollMaxAttempts <= 0 {
			b.PollMaxAttempts = 60
		}
		if b.DurationSeconds <= 0 {
			b.DurationSeconds = 30
		}
		if b.MimeType == "" {
			b.MimeType = "audio/mpeg"
		}
		if len(b.FilterMarkers) == 0 {
			b.FilterMarkers = []string{"flagged", "safety"}
		}
		cfg.Music.Backends[name] = b
	}
}
