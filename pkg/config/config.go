package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/mudler/hybridrecall/rag/engine"
)

const (
	EngineChromem  = "chromem"
	EnginePostgres = "postgres"
	EngineLocalAI  = "localai"
)

// Config holds the service configuration, read from the environment
type Config struct {
	ListenAddress    string `envconfig:"LISTEN_ADDRESS" default:":8080"`
	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY" default:"sk-local"`
	OpenAIBaseURL    string `envconfig:"OPENAI_BASE_URL" default:"http://localhost:8081/v1"`
	EmbeddingModel   string `envconfig:"EMBEDDING_MODEL" default:"granite-embedding-107m-multilingual"`
	VectorEngine     string `envconfig:"VECTOR_ENGINE" default:"chromem"`
	CollectionDBPath string `envconfig:"COLLECTION_DB_PATH" default:"collections"`
	DatabaseURL      string `envconfig:"DATABASE_URL"`
	LocalAIStoreURL  string `envconfig:"LOCALAI_STORE_URL" default:"http://localhost:8081"`
	BleveAnalyzer    string `envconfig:"BLEVE_ANALYZER" default:"en"`

	SearchLimit             int     `envconfig:"SEARCH_LIMIT" default:"10"`
	SearchOverrequestFactor float64 `envconfig:"SEARCH_OVERREQUEST_FACTOR" default:"10"`
	SearchVectorPriority    float64 `envconfig:"SEARCH_VECTOR_PRIORITY" default:"1"`
	SearchTextPriority      float64 `envconfig:"SEARCH_TEXT_PRIORITY" default:"1"`
}

// Load reads an optional .env file and then the environment
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SearchOptions returns the default hybrid search options
func (c *Config) SearchOptions() engine.Options {
	return engine.Options{
		Limit:             c.SearchLimit,
		OverrequestFactor: c.SearchOverrequestFactor,
		VectorPriority:    c.SearchVectorPriority,
		TextPriority:      c.SearchTextPriority,
	}
}

func (c *Config) Validate() error {
	switch c.VectorEngine {
	case EngineChromem, EngineLocalAI:
	case EnginePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s engine", EnginePostgres)
		}
	default:
		return fmt.Errorf("unknown VECTOR_ENGINE %q", c.VectorEngine)
	}

	return c.SearchOptions().Validate()
}
