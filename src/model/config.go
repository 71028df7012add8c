package model

import "time"

// LogConfig configures the global zerolog logger.
type LogConfig struct {
	Level      string `envconfig:"LOG_LEVEL" default:"info"`
	Format     string `envconfig:"LOG_FORMAT" default:"json"`
	Output     string `envconfig:"LOG_OUTPUT" default:"stdout"`
	FilePath   string `envconfig:"LOG_FILE_PATH" default:"logs/medcmd.log"`
	TimeFormat string `envconfig:"LOG_TIME_FORMAT" default:"rfc3339"`
}

// ConversationConfig configures the conversation context store.
type ConversationConfig struct {
	// Backend is "memory" or "redis".
	Backend    string        `envconfig:"CONTEXT_BACKEND" default:"memory"`
	RedisURL   string        `envconfig:"REDIS_URL"`
	TTL        time.Duration `envconfig:"CONTEXT_TTL" default:"30m"`
	HistoryLen int           `envconfig:"CONTEXT_HISTORY_LEN" default:"10"`
	// PruneInterval is how often the memory backend sweeps expired sessions.
	PruneInterval time.Duration `envconfig:"CONTEXT_PRUNE_INTERVAL" default:"5m"`
}

// ServerConfig configures the HTTP adapter and file-backed outputs.
type ServerConfig struct {
	Addr          string        `envconfig:"SERVER_ADDR" default:":8000"`
	ReadTimeout   time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout  time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"60s"`
	DomainConfig  string        `envconfig:"DOMAIN_CONFIG"`
	CommandLogDir string        `envconfig:"COMMAND_LOG_DIR"`
	// CommandLogRetention drops logged commands older than this. Zero keeps everything.
	CommandLogRetention time.Duration `envconfig:"COMMAND_LOG_RETENTION" default:"0s"`
}
