package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StoreDriver selects where session state is persisted.
type StoreDriver string

const (
	// StoreDriverFile keeps state in a JSON file on local disk.
	StoreDriverFile StoreDriver = "file"
	// StoreDriverRedis keeps state in a Redis hash per namespace.
	StoreDriverRedis StoreDriver = "redis"
	// StoreDriverPostgres keeps state in the client_state table.
	StoreDriverPostgres StoreDriver = "postgres"
	// StoreDriverMemory keeps state for the lifetime of the process only.
	StoreDriverMemory StoreDriver = "memory"
)

// UnmarshalText implements encoding.TextUnmarshaler to parse StoreDriver from env.
func (d *StoreDriver) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch StoreDriver(v) {
	case StoreDriverFile, StoreDriverRedis, StoreDriverPostgres, StoreDriverMemory:
		*d = StoreDriver(v)
		return nil
	default:
		return fmt.Errorf(
			"invalid store driver: %q (valid options: file, redis, postgres, memory)",
			v,
		)
	}
}

// String returns the driver name.
func (d StoreDriver) String() string { return string(d) }

// StoreConfig contains session state persistence configuration.
type StoreConfig struct {
	Driver StoreDriver `env:"DRIVER" envDefault:"file"`

	// FilePath is the state file for the file driver. Defaults to $HOME/.blocpoint/state.json.
	FilePath string `env:"FILE_PATH"`

	// Namespace partitions state per installation in the shared redis/postgres drivers.
	Namespace string `env:"NAMESPACE" envDefault:"default"`
}

// Sanitize applies guardrails to store configuration values.
func (s *StoreConfig) Sanitize() {
	if s.Driver == "" {
		s.Driver = StoreDriverFile
	}
	s.Namespace = strings.TrimSpace(s.Namespace)
	if s.Namespace == "" {
		s.Namespace = "default"
	}
	s.FilePath = strings.TrimSpace(s.FilePath)
	if s.FilePath == "" {
		s.FilePath = defaultStatePath()
	}
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".blocpoint", "state.json")
	}
	return filepath.Join(home, ".blocpoint", "state.json")
}
