package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	RAG       RAGConfig       `yaml:"rag"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// MaxUploadBytes caps the encoded request body for /ingest.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	// MaxDocumentsPerNotebook caps distinct source documents per notebook.
	// A negative value disables the cap.
	MaxDocumentsPerNotebook int `yaml:"max_documents_per_notebook"`
}

type StoreConfig struct {
	// Driver selects the vector store backend: "postgres" or "chromem".
	Driver     string `yaml:"driver"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type EmbeddingConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
	// Retries is the total number of attempts, RetryDelayMS the fixed wait
	// between them.
	Retries      int `yaml:"retries"`
	RetryDelayMS int `yaml:"retry_delay_ms"`
	TimeoutMS    int `yaml:"timeout_ms"`
	// Dimension of the provider's vectors. Must match the store schema.
	Dimension int `yaml:"dimension"`
}

type LLMConfig struct {
	BaseURL      string `yaml:"base_url"`
	Key          string `yaml:"key"`
	Model        string `yaml:"model"`
	Retries      int    `yaml:"retries"`
	RetryDelayMS int    `yaml:"retry_delay_ms"`
}

type RAGConfig struct {
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is a pointer so an explicit 0 in the yaml survives;
	// only an absent key gets the default.
	ChunkOverlap *int `yaml:"chunk_overlap"`
	TopK         int  `yaml:"top_k"`
	// StrictIngest switches ingestion from best-effort (failed chunks are
	// skipped) to all-or-nothing with compensating deletes.
	StrictIngest bool `yaml:"strict_ingest"`
}

const (
	defaultAddr           = ":5000"
	defaultMaxUploadBytes = 50 << 20
	defaultMaxDocuments   = 3
	defaultChunkSize      = 1000
	defaultChunkOverlap   = 200
	defaultDimension      = 1024
	defaultEmbedRetries   = 3
	defaultEmbedDelayMS   = 2000
	defaultLLMRetries     = 2
)

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	if c.Server.MaxUploadBytes <= 0 {
		c.Server.MaxUploadBytes = defaultMaxUploadBytes
	}
	if c.Server.MaxDocumentsPerNotebook == 0 {
		c.Server.MaxDocumentsPerNotebook = defaultMaxDocuments
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "postgres"
	}
	if c.Store.Collection == "" {
		c.Store.Collection = "documents"
	}
	if c.Embedding.Retries <= 0 {
		c.Embedding.Retries = defaultEmbedRetries
	}
	if c.Embedding.RetryDelayMS <= 0 {
		c.Embedding.RetryDelayMS = defaultEmbedDelayMS
	}
	if c.Embedding.Dimension <= 0 {
		c.Embedding.Dimension = defaultDimension
	}
	if c.LLM.Retries <= 0 {
		c.LLM.Retries = defaultLLMRetries
	}
	if c.RAG.ChunkSize <= 0 {
		c.RAG.ChunkSize = defaultChunkSize
	}
	if c.RAG.ChunkOverlap == nil {
		overlap := defaultChunkOverlap
		c.RAG.ChunkOverlap = &overlap
	}
}

// applyEnv lets secrets come from the environment instead of the yaml file.
func (c *Config) applyEnv() {
	if v := os.Getenv("HUGGINGFACE_API_KEY"); v != "" {
		c.Embedding.Token = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		c.LLM.Key = v
	}
	if v := os.Getenv("SUPABASE_PRIVATE_KEY"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
}
