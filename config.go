package graphrag

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/graphrag/llm"
	"github.com/brunobiangulo/graphrag/search"
)

// Vector store backends.
const (
	BackendMemory    = "memory"
	BackendSQLiteVec = "sqlitevec"
	BackendPgVector  = "pgvector"
)

// VectorStoreConfig selects and configures the embedding backend.
type VectorStoreConfig struct {
	// Backend is one of memory, sqlitevec, pgvector.
	Backend string `json:"backend" yaml:"backend"`

	// Path is the database file for the sqlitevec backend.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// DSN is the connection string for the pgvector backend.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`

	// Dim is the embedding dimension of the index.
	Dim int `json:"dim" yaml:"dim"`
}

// Config is the engine configuration.
type Config struct {
	// EncodingModel names the tiktoken encoding for all token counting.
	EncodingModel string `json:"encoding_model" yaml:"encoding_model"`

	// Chat is the completion model endpoint.
	Chat llm.Config `json:"chat" yaml:"chat"`

	// Embedding is the embedding model endpoint.
	Embedding llm.Config `json:"embedding" yaml:"embedding"`

	// EmbedMaxRetries bounds the retry budget for embedding calls.
	EmbedMaxRetries int `json:"embed_max_retries" yaml:"embed_max_retries"`

	VectorStore VectorStoreConfig `json:"vector_store" yaml:"vector_store"`

	Local  search.LocalConfig  `json:"local" yaml:"local"`
	Global search.GlobalConfig `json:"global" yaml:"global"`
	Drift  search.DriftConfig  `json:"drift" yaml:"drift"`
}

// DefaultConfig returns a configuration with standard tunings. Endpoints
// and the vector store dimension must still be filled in.
func DefaultConfig() Config {
	return Config{
		EncodingModel:   "cl100k_base",
		EmbedMaxRetries: llm.DefaultEmbedRetries,
		VectorStore:     VectorStoreConfig{Backend: BackendMemory},
		Local:           search.DefaultLocalConfig(),
		Global:          search.DefaultGlobalConfig(),
		Drift:           search.DefaultDriftConfig(),
	}
}

// Validate checks the configuration. Violations return ErrInvalidConfig;
// they are fatal at engine construction.
func (c *Config) Validate() error {
	if c.Local.CommunityProp < 0 || c.Local.CommunityProp > 1 {
		return fmt.Errorf("%w: local community_prop %v outside [0,1]",
			ErrInvalidConfig, c.Local.CommunityProp)
	}
	if c.Local.TextUnitProp < 0 || c.Local.TextUnitProp > 1 {
		return fmt.Errorf("%w: local text_unit_prop %v outside [0,1]",
			ErrInvalidConfig, c.Local.TextUnitProp)
	}
	if sum := c.Local.CommunityProp + c.Local.TextUnitProp; sum > 1 {
		return fmt.Errorf("%w: local proportions sum to %v, must be <= 1",
			ErrInvalidConfig, sum)
	}
	if c.Local.MaxContextTokens <= 0 {
		return fmt.Errorf("%w: local max_tokens must be positive", ErrInvalidConfig)
	}
	if c.Local.TopKEntities <= 0 || c.Local.TopKRelationships <= 0 {
		return fmt.Errorf("%w: local top-k values must be positive", ErrInvalidConfig)
	}
	if c.Global.MaxDataTokens <= 0 {
		return fmt.Errorf("%w: global max_data_tokens must be positive", ErrInvalidConfig)
	}
	if c.Drift.Iterations <= 0 || c.Drift.SearchPrimerK <= 0 || c.Drift.PrimerFolds <= 0 {
		return fmt.Errorf("%w: drift n, search_primer_k and primer_folds must be positive",
			ErrInvalidConfig)
	}
	switch c.VectorStore.Backend {
	case BackendMemory:
	case BackendSQLiteVec:
		if c.VectorStore.Path == "" {
			return fmt.Errorf("%w: sqlitevec backend requires a path", ErrInvalidConfig)
		}
	case BackendPgVector:
		if c.VectorStore.DSN == "" {
			return fmt.Errorf("%w: pgvector backend requires a dsn", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown vector store backend %q",
			ErrInvalidConfig, c.VectorStore.Backend)
	}
	return nil
}

// LoadConfig reads a YAML configuration file over DefaultConfig and
// applies environment overrides for credentials (GRAPHRAG_CHAT_API_KEY,
// GRAPHRAG_EMBEDDING_API_KEY, GRAPHRAG_PG_DSN).
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if v := os.Getenv("GRAPHRAG_CHAT_API_KEY"); v != "" {
		cfg.Chat.APIKey = v
	}
	if v := os.Getenv("GRAPHRAG_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("GRAPHRAG_PG_DSN"); v != "" {
		cfg.VectorStore.DSN = v
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
