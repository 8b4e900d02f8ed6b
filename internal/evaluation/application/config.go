package application

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	detection "falldetect/internal/detection/domain"
	evaluation "falldetect/internal/evaluation/domain"
)

// CorpusKindSisFall selects the SisFall directory loader.
const CorpusKindSisFall = "sisfall"

// CorpusConfig locates the labeled corpus.
type CorpusConfig struct {
	Kind         string  `yaml:"kind"`
	Root         string  `yaml:"root"`
	SamplingFreq float64 `yaml:"sampling_freq"`
	Range        float64 `yaml:"range"`
	Resolution   int     `yaml:"resolution"`
}

// WorkersConfig bounds concurrency.
type WorkersConfig struct {
	Recordings int `yaml:"recordings"`
	Cells      int `yaml:"cells"`
}

// CacheConfig selects the matrix cache.
type CacheConfig struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// Config defines evaluation and search configuration.
type Config struct {
	Detector         detection.DetectorConfig `yaml:"detector"`
	Grid             evaluation.Grid          `yaml:"grid"`
	Corpus           CorpusConfig             `yaml:"corpus"`
	Workers          WorkersConfig            `yaml:"workers"`
	RecordingTimeout time.Duration            `yaml:"recording_timeout"`
	CellTimeout      time.Duration            `yaml:"cell_timeout"`
	Cache            CacheConfig              `yaml:"cache"`
	StorageRoot      string                   `yaml:"storage_root"`
	WebhookURL       string                   `yaml:"webhook_url"`
	WebhookTimeout   time.Duration            `yaml:"webhook_timeout"`
	PublicBaseURL    string                   `yaml:"public_base_url"`
}

// LoadConfig loads config from yaml or env.
func LoadConfig() (Config, error) {
	grid := evaluation.DefaultGrid()
	grid.Base = detection.DetectorConfig{}
	cfg := Config{
		Detector: detection.DefaultDetectorConfig(),
		Grid:     grid,
		Corpus: CorpusConfig{
			Kind: getenvDefault("FALLDETECT_CORPUS_KIND", CorpusKindSisFall),
			Root: getenvDefault("FALLDETECT_CORPUS_ROOT", "SisFall_dataset"),
		},
		Workers: WorkersConfig{
			Recordings: getenvIntDefault("FALLDETECT_RECORDING_WORKERS", 0),
			Cells:      getenvIntDefault("FALLDETECT_CELL_WORKERS", 0),
		},
		RecordingTimeout: getenvDuration("FALLDETECT_RECORDING_TIMEOUT", 0),
		CellTimeout:      getenvDuration("FALLDETECT_CELL_TIMEOUT", 0),
		Cache: CacheConfig{
			RedisURL: os.Getenv("FALLDETECT_REDIS_URL"),
			TTL:      getenvDuration("FALLDETECT_CACHE_TTL", 24*time.Hour),
		},
		StorageRoot:    getenvDefault("FALLDETECT_STORAGE_ROOT", filepath.FromSlash("var/reports/search")),
		WebhookURL:     os.Getenv("FALLDETECT_WEBHOOK_URL"),
		WebhookTimeout: getenvDuration("FALLDETECT_WEBHOOK_TIMEOUT", 10*time.Second),
		PublicBaseURL:  getenvDefault("FALLDETECT_PUBLIC_BASE_URL", "http://localhost:8080"),
	}

	if path := os.Getenv("FALLDETECT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	return cfg.normalize()
}

// ParseConfig decodes yaml over the built-in defaults without consulting the environment.
func ParseConfig(data []byte) (Config, error) {
	grid := evaluation.DefaultGrid()
	grid.Base = detection.DetectorConfig{}
	cfg := Config{
		Detector: detection.DefaultDetectorConfig(),
		Grid:     grid,
		Corpus:   CorpusConfig{Kind: CorpusKindSisFall},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg.normalize()
}

func (c Config) normalize() (Config, error) {
	c.Detector = c.Detector.WithDefaults()
	if err := c.Detector.Validate(); err != nil {
		return c, err
	}
	if c.Grid.Base == (detection.DetectorConfig{}) {
		c.Grid.Base = c.Detector
	}
	if err := c.Grid.Validate(); err != nil {
		return c, err
	}
	c.Corpus.Kind = strings.ToLower(strings.TrimSpace(c.Corpus.Kind))
	if c.Corpus.Kind == "" {
		c.Corpus.Kind = CorpusKindSisFall
	}
	if c.Corpus.Kind != CorpusKindSisFall {
		return c, fmt.Errorf("%w: %s", ErrUnsupportedCorpus, c.Corpus.Kind)
	}
	return c, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
