package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-registry/internal/recognizer"
)

//go:embed modes.yaml
var modesYAML []byte

// DefaultMode is used when RECOGNIZER_MODE is unset or names an unknown mode.
const DefaultMode = "balanced"

type Config struct {
	Corpus     CorpusConfig
	Recognizer RecognizerConfig
	Database   DatabaseConfig
	Web        WebConfig
	Modes      ModesConfig
}

type CorpusConfig struct {
	DataDir string // root directory of the filesystem face corpus (default ./data)
}

type RecognizerConfig struct {
	URL       string  // face recognition service URL (defaults to http://localhost:8000)
	Mode      string  // performance mode preset name (see modes.yaml)
	Threshold float64 // match confidence threshold override; 0 keeps the mode preset
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL; empty selects the filesystem backend
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
	EmbeddingDim int    // pgvector embedding dimension (default 512)
}

type WebConfig struct {
	Host     string // bind address (default empty, all interfaces)
	Port     int    // HTTP port (default 8080)
	APIToken string // optional bearer token; empty disables auth
}

type ModesConfig struct {
	Modes map[string]recognizer.Options `yaml:"modes"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a float in (0, 1].
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

func Load() *Config {
	var modes ModesConfig
	if err := yaml.Unmarshal(modesYAML, &modes); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded modes.yaml: " + err.Error())
	}

	dataDir := os.Getenv("FACE_DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}

	mode := os.Getenv("RECOGNIZER_MODE")
	if mode == "" {
		mode = DefaultMode
	}

	return &Config{
		Corpus: CorpusConfig{
			DataDir: dataDir,
		},
		Recognizer: RecognizerConfig{
			URL:       os.Getenv("RECOGNIZER_URL"),
			Mode:      mode,
			Threshold: envFloat("CONFIDENCE_THRESHOLD", 0),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
			EmbeddingDim: envInt("EMBEDDING_DIM", 512),
		},
		Web: WebConfig{
			Host:     os.Getenv("WEB_HOST"),
			Port:     envInt("WEB_PORT", 8080),
			APIToken: os.Getenv("API_TOKEN"),
		},
		Modes: modes,
	}
}

// Options resolves the recognition options for the named performance mode.
// An unknown name falls back to the default mode. A non-zero threshold from
// the environment overrides the preset.
func (c *Config) Options(mode string) recognizer.Options {
	opts, ok := c.Modes.Modes[mode]
	if !ok {
		opts = c.Modes.Modes[DefaultMode]
	}
	if c.Recognizer.Threshold > 0 {
		opts.Threshold = c.Recognizer.Threshold
	}
	return opts
}

// ModeNames returns the available performance mode names.
func (c *Config) ModeNames() []string {
	names := make([]string, 0, len(c.Modes.Modes))
	for name := range c.Modes.Modes {
		names = append(names, name)
	}
	return names
}
