// Package config loads fieldrag configuration from defaults, YAML files,
// a project .env file and FIELDRAG_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ProjectConfigName is the per-project config file name.
const ProjectConfigName = ".fieldrag.yaml"

// Config is the complete fieldrag configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Ingestion  IngestionConfig  `yaml:"ingestion" json:"ingestion"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`

	// ProjectDir is the directory relative paths resolve against.
	ProjectDir string `yaml:"-" json:"-"`
}

// PathsConfig locates the corpus and the persisted index.
type PathsConfig struct {
	// CorpusDir holds the documents a full rebuild ingests.
	CorpusDir string `yaml:"corpus_dir" json:"corpus_dir"`
	// IndexDir is the persisted vector index directory.
	IndexDir string `yaml:"index_dir" json:"index_dir"`
	// Extensions lists the file extensions ingested from CorpusDir.
	Extensions []string `yaml:"extensions" json:"extensions"`
}

// ChunkingConfig configures the word-window chunker.
type ChunkingConfig struct {
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
}

// RetrievalConfig holds the default ranking parameters.
type RetrievalConfig struct {
	TopK        int     `yaml:"top_k" json:"top_k"`
	MinScore    float64 `yaml:"min_score" json:"min_score"`
	BoostFactor float64 `yaml:"boost_factor" json:"boost_factor"`
	// PreviewChars truncates returned chunk text. 0 returns full text.
	PreviewChars int `yaml:"preview_chars" json:"preview_chars"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider   string        `yaml:"provider" json:"provider"`
	Model      string        `yaml:"model" json:"model"`
	OllamaHost string        `yaml:"ollama_host" json:"ollama_host"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	CacheSize  int           `yaml:"cache_size" json:"cache_size"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	// Dimensions is only used by the static provider.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
}

// IngestionConfig tunes the ingestion pipeline.
type IngestionConfig struct {
	// Workers bounds parallel text extraction. 0 means runtime.NumCPU().
	Workers int `yaml:"workers" json:"workers"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFile   string `yaml:"log_file" json:"log_file"`
}

// WatchConfig configures the corpus watcher.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			CorpusDir:  "data",
			IndexDir:   filepath.Join(".fieldrag", "index"),
			Extensions: []string{".pdf", ".txt", ".md"},
		},
		Chunking: ChunkingConfig{
			ChunkSize: 150,
		},
		Retrieval: RetrievalConfig{
			TopK:         5,
			MinScore:     0.7,
			BoostFactor:  1.2,
			PreviewChars: 500,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "all-minilm",
			OllamaHost: "",
			BatchSize:  32,
			CacheSize:  1000,
			Timeout:    60 * time.Second,
			Dimensions: 384,
		},
		Ingestion: IngestionConfig{
			Workers: runtime.NumCPU(),
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
	}
}

// GetUserConfigPath returns the user config path, honouring XDG_CONFIG_HOME:
//   - $XDG_CONFIG_HOME/fieldrag/config.yaml
//   - ~/.config/fieldrag/config.yaml
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "fieldrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "fieldrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "fieldrag", "config.yaml")
}

// UserConfigExists reports whether the user config file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load builds the configuration for dir. Sources, lowest precedence first:
//  1. defaults
//  2. user config (~/.config/fieldrag/config.yaml)
//  3. project config (.fieldrag.yaml in dir)
//  4. .env in dir (never overrides variables already set)
//  5. FIELDRAG_* environment variables
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project dir %s: %w", dir, err)
	}
	cfg.ProjectDir = abs

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromFile(abs); err != nil {
		return nil, err
	}

	if err := loadDotEnv(abs); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads .fieldrag.yaml, falling back to .fieldrag.yml.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{ProjectConfigName, ".fieldrag.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML decodes path on top of c. Keys absent from the file keep their
// current values, so explicit zeros such as min_score: 0 are honoured.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if !fileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies FIELDRAG_* variables. Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FIELDRAG_CORPUS_DIR"); v != "" {
		c.Paths.CorpusDir = v
	}
	if v := os.Getenv("FIELDRAG_INDEX_DIR"); v != "" {
		c.Paths.IndexDir = v
	}
	if v := os.Getenv("FIELDRAG_EXTENSIONS"); v != "" {
		var exts []string
		for _, e := range strings.Split(v, ",") {
			if e = strings.TrimSpace(e); e != "" {
				exts = append(exts, e)
			}
		}
		c.Paths.Extensions = exts
	}
	if v, ok := envInt("FIELDRAG_CHUNK_SIZE"); ok {
		c.Chunking.ChunkSize = v
	}
	if v, ok := envInt("FIELDRAG_TOP_K"); ok {
		c.Retrieval.TopK = v
	}
	if v, ok := envFloat("FIELDRAG_MIN_SCORE"); ok {
		c.Retrieval.MinScore = v
	}
	if v, ok := envFloat("FIELDRAG_BOOST_FACTOR"); ok {
		c.Retrieval.BoostFactor = v
	}
	if v, ok := envInt("FIELDRAG_PREVIEW_CHARS"); ok {
		c.Retrieval.PreviewChars = v
	}
	if v := os.Getenv("FIELDRAG_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("FIELDRAG_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("FIELDRAG_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v, ok := envInt("FIELDRAG_WORKERS"); ok {
		c.Ingestion.Workers = v
	}
	if v := os.Getenv("FIELDRAG_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Paths.IndexDir == "" {
		return fmt.Errorf("paths.index_dir must not be empty")
	}
	if len(c.Paths.Extensions) == 0 {
		return fmt.Errorf("paths.extensions must list at least one extension")
	}
	for _, ext := range c.Paths.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("paths.extensions entries must start with '.', got %q", ext)
		}
	}

	if c.Chunking.ChunkSize < 0 {
		return fmt.Errorf("chunking.chunk_size must be non-negative, got %d", c.Chunking.ChunkSize)
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be greater than 0, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.MinScore < 0 {
		return fmt.Errorf("retrieval.min_score must be non-negative, got %f", c.Retrieval.MinScore)
	}
	if c.Retrieval.BoostFactor < 1 {
		return fmt.Errorf("retrieval.boost_factor must be at least 1, got %f", c.Retrieval.BoostFactor)
	}
	if c.Retrieval.PreviewChars < 0 {
		return fmt.Errorf("retrieval.preview_chars must be non-negative, got %d", c.Retrieval.PreviewChars)
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "ollama", "static":
	default:
		return fmt.Errorf("embeddings.provider must be 'ollama' or 'static', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings.batch_size must be greater than 0, got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.CacheSize < 0 {
		return fmt.Errorf("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize)
	}

	if c.Ingestion.Workers < 0 {
		return fmt.Errorf("ingestion.workers must be non-negative, got %d", c.Ingestion.Workers)
	}

	if strings.ToLower(c.Server.Transport) != "stdio" {
		return fmt.Errorf("server.transport must be 'stdio', got %q", c.Server.Transport)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must be non-negative, got %s", c.Watch.Debounce)
	}

	return nil
}

// CorpusPath returns the absolute corpus directory.
func (c *Config) CorpusPath() string {
	return c.resolve(c.Paths.CorpusDir)
}

// IndexPath returns the absolute index directory.
func (c *Config) IndexPath() string {
	return c.resolve(c.Paths.IndexDir)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) || c.ProjectDir == "" {
		return p
	}
	return filepath.Join(c.ProjectDir, p)
}

// HasExtension reports whether path carries one of the configured extensions.
func (c *Config) HasExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range c.Paths.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
