package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App            AppConfig
	DB             DBConfig
	Redis          RedisConfig
	Models         ModelsConfig
	Ingest         IngestConfig
	Retrieval      RetrievalConfig
	Media          MediaConfig
	Progress       ProgressConfig
	QueryRateLimit QueryRateLimitConfig
	FeatureFlags   FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SENTIO_APP_ENV" required:"true"`
	Port         string `envconfig:"SENTIO_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SENTIO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SENTIO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SENTIO_DB_DSN"`
	Driver string `envconfig:"SENTIO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SENTIO_DB_HOST"`
	LegacyPort     int    `envconfig:"SENTIO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SENTIO_DB_USER"`
	LegacyPassword string `envconfig:"SENTIO_DB_PASSWORD"`
	LegacyName     string `envconfig:"SENTIO_DB_NAME"`
	LegacySSLMode  string `envconfig:"SENTIO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SENTIO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SENTIO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SENTIO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SENTIO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SENTIO_REDIS_URL"`
	Address      string        `envconfig:"SENTIO_REDIS_ADDR"`
	Password     string        `envconfig:"SENTIO_REDIS_PASSWORD"`
	DB           int           `envconfig:"SENTIO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SENTIO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SENTIO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SENTIO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SENTIO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SENTIO_REDIS_WRITE_TIMEOUT" default:"5s"`

	EmbeddingCacheTTL time.Duration `envconfig:"SENTIO_REDIS_EMBEDDING_CACHE_TTL" default:"1h"`
}

// ModelsConfig points at the OpenAI-compatible NIM endpoints serving each
// collaborator. Separate base URLs allow the description, embedding and
// generation models to run on different instances.
type ModelsConfig struct {
	APIKey string `envconfig:"SENTIO_MODELS_API_KEY"`

	VLMBaseURL string `envconfig:"SENTIO_MODELS_VLM_URL" default:"http://localhost:8000/v1"`
	VLMModel   string `envconfig:"SENTIO_MODELS_VLM_MODEL" default:"nvidia/vila"`

	EmbeddingBaseURL string `envconfig:"SENTIO_MODELS_EMBEDDING_URL" default:"http://localhost:8001/v1"`
	EmbeddingModel   string `envconfig:"SENTIO_MODELS_EMBEDDING_MODEL" default:"nvidia/nv-embed-qa"`
	EmbeddingDim     int    `envconfig:"SENTIO_MODELS_EMBEDDING_DIM" default:"1024"`

	LLMBaseURL string `envconfig:"SENTIO_MODELS_LLM_URL" default:"http://localhost:8002/v1"`
	LLMModel   string `envconfig:"SENTIO_MODELS_LLM_MODEL" default:"meta/llama"`

	WhisperBaseURL string `envconfig:"SENTIO_MODELS_WHISPER_URL" default:"http://localhost:8003/v1"`
	WhisperModel   string `envconfig:"SENTIO_MODELS_WHISPER_MODEL" default:"whisper-1"`

	DetectorBaseURL  string `envconfig:"SENTIO_MODELS_DETECTOR_URL" default:"http://localhost:8004"`
	SegmenterBaseURL string `envconfig:"SENTIO_MODELS_SEGMENTER_URL" default:"http://localhost:8005"`

	Timeout time.Duration `envconfig:"SENTIO_MODELS_TIMEOUT" default:"120s"`

	// MaxConcurrentCalls bounds in-flight collaborator calls across the
	// whole process (one GPU behind the endpoints in the common deploy).
	MaxConcurrentCalls int `envconfig:"SENTIO_MODELS_MAX_CONCURRENT_CALLS" default:"4"`
}

type IngestConfig struct {
	FrameInterval    time.Duration `envconfig:"SENTIO_INGEST_FRAME_INTERVAL" default:"1s"`
	MaxRetries       int           `envconfig:"SENTIO_INGEST_MAX_RETRIES" default:"3"`
	RetryBackoff     time.Duration `envconfig:"SENTIO_INGEST_RETRY_BACKOFF" default:"2s"`
	FatalFailureRate float64       `envconfig:"SENTIO_INGEST_FATAL_FAILURE_RATE" default:"0.5"`
	WorkerPoolSize   int           `envconfig:"SENTIO_INGEST_WORKER_POOL_SIZE" default:"2"`

	// AudioSegmentSeconds consolidates raw transcript segments into chunks of
	// at least this many seconds before embedding.
	AudioSegmentSeconds float64 `envconfig:"SENTIO_INGEST_AUDIO_SEGMENT_SECONDS" default:"10"`
}

type RetrievalConfig struct {
	WindowSeconds       float64 `envconfig:"SENTIO_RETRIEVAL_WINDOW_SECONDS" default:"30"`
	CandidateMultiplier int     `envconfig:"SENTIO_RETRIEVAL_CANDIDATE_MULTIPLIER" default:"5"`
	DefaultTopK         int     `envconfig:"SENTIO_RETRIEVAL_DEFAULT_TOP_K" default:"5"`
	GlobalTopK          int     `envconfig:"SENTIO_RETRIEVAL_GLOBAL_TOP_K" default:"20"`
	AnswerContextSize   int     `envconfig:"SENTIO_RETRIEVAL_ANSWER_CONTEXT_SIZE" default:"10"`
}

type MediaConfig struct {
	VideosDir   string `envconfig:"SENTIO_MEDIA_VIDEOS_DIR" default:"./data/videos"`
	MaxUploadMB int    `envconfig:"SENTIO_MEDIA_MAX_UPLOAD_MB" default:"500"`
}

type ProgressConfig struct {
	PingInterval time.Duration `envconfig:"SENTIO_PROGRESS_PING_INTERVAL" default:"10s"`
	WriteTimeout time.Duration `envconfig:"SENTIO_PROGRESS_WRITE_TIMEOUT" default:"5s"`
}

// QueryRateLimitConfig throttles the model-backed ask/search surface per
// client IP. A zero window or limit disables throttling.
type QueryRateLimitConfig struct {
	Window time.Duration `envconfig:"SENTIO_QUERY_RATE_LIMIT_WINDOW" default:"1m"`
	Limit  int           `envconfig:"SENTIO_QUERY_RATE_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SENTIO_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SENTIO_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
