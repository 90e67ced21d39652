package schema

import "time"

// RedisConfig contains shared-store settings
type RedisConfig struct {
	// URL such as redis://:password@localhost:6379/0; empty disables the store
	URL          Secret        `yaml:"url" json:"url"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	OpTimeout    time.Duration `yaml:"op_timeout" json:"op_timeout"`
	RetryBackoff time.Duration `yaml:"retry_backoff" json:"retry_backoff"`
}

// PostgresConfig contains relational collaborator settings
type PostgresConfig struct {
	DSN             Secret        `yaml:"dsn" json:"dsn"`
	MaxConns        int32         `yaml:"max_conns" json:"max_conns"`
	MinConns        int32         `yaml:"min_conns" json:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" json:"max_conn_lifetime"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}
