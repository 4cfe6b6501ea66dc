package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Corpus    CorpusConfig
	Embedding EmbeddingConfig
	Vector    VectorConfig
	LLM       LLMConfig
	Redis     RedisConfig
	SQLite    SQLiteConfig
	Pipeline  PipelineConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type CorpusConfig struct {
	Path           string
	RawDataDir     string
	ChunkSize      int
	ChunkOverlap   int
	MinChunkLength int
	MaxKeywords    int
}

type EmbeddingConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	BatchSize int
	CacheDir  string
	CacheTTL  int
}

type VectorConfig struct {
	Backend        string
	Endpoint       string
	CollectionName string
	Recreate       bool
	SnapshotPath   string
}

type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
	MaxRetries  int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type SQLiteConfig struct {
	Path string
}

type PipelineConfig struct {
	TopK                int
	SimilarityThreshold float64
}

type RateLimitConfig struct {
	MaxRequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/cityrag")

	viper.SetEnvPrefix("CITYRAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("corpus.path", "./data/processed/city_chunks.json")
	viper.SetDefault("corpus.rawDataDir", "./data/raw")
	viper.SetDefault("corpus.chunkSize", 800)
	viper.SetDefault("corpus.chunkOverlap", 100)
	viper.SetDefault("corpus.minChunkLength", 50)
	viper.SetDefault("corpus.maxKeywords", 20)

	// Credentials and endpoints default empty so viper knows the keys and
	// env overrides (CITYRAG_EMBEDDING_APIKEY etc.) survive Unmarshal.
	viper.SetDefault("embedding.apiKey", "")
	viper.SetDefault("embedding.baseURL", "")
	viper.SetDefault("embedding.model", "all-MiniLM-L6-v2")
	viper.SetDefault("embedding.dimension", 384)
	viper.SetDefault("embedding.batchSize", 32)
	viper.SetDefault("embedding.cacheDir", "./data/embeddings/cache")
	viper.SetDefault("embedding.cacheTTL", 86400)

	viper.SetDefault("vector.backend", "memory")
	viper.SetDefault("vector.endpoint", "localhost:19530")
	viper.SetDefault("vector.collectionName", "city_services")
	viper.SetDefault("vector.recreate", true)
	viper.SetDefault("vector.snapshotPath", "./data/embeddings/index_snapshot.json")

	viper.SetDefault("llm.apiKey", "")
	viper.SetDefault("llm.baseURL", "https://api.groq.com/openai/v1")
	viper.SetDefault("llm.model", "llama3-8b-8192")
	viper.SetDefault("llm.temperature", 0.1)
	viper.SetDefault("llm.maxTokens", 1000)
	viper.SetDefault("llm.timeoutSec", 30)
	viper.SetDefault("llm.maxRetries", 3)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("sqlite.path", "./data/cityrag.db")

	viper.SetDefault("pipeline.topK", 5)
	viper.SetDefault("pipeline.similarityThreshold", 0.1)

	viper.SetDefault("ratelimit.maxRequestsPerMinute", 60)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
