package config

// DBConfig contains PostgreSQL database configuration for the postgres store driver.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"blocpoint"`
	Password string `env:"PASSWORD" envDefault:"blocpoint"`
	Name     string `env:"NAME"     envDefault:"blocpoint"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// EnsureSchema creates the client_state table on startup when missing.
	EnsureSchema bool `env:"ENSURE_SCHEMA" envDefault:"true"`
}

// RedisConfig contains Redis configuration for the redis store driver.
type RedisConfig struct {
	// URI is a redis:// or rediss:// URL, or a bare host:port.
	URI      string `env:"URI"      envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
	// KeyPrefix namespaces the state hashes.
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"blocpoint:state:"`
}
