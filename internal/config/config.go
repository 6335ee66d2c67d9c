// Package config provides configuration types for the db-connect server.
//
// Configuration comes from a YAML file (db-connect.yaml) with environment
// variable overrides under the DB_CONNECT_ prefix. Secrets (database
// password, Anthropic key, Redash key) are expected via environment in
// deployed setups; the YAML file carries the structural knobs.
package config

import "fmt"

// Config is the top-level configuration for db-connect.
type Config struct {
	// Server configures the HTTP listener hosting the REST API and the
	// MCP SSE transport.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Database configures the read-only relational pool.
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Mongo configures the conversation document store.
	Mongo MongoConfig `yaml:"mongo" mapstructure:"mongo"`

	// LLM configures the Anthropic messages client used by the agent loop.
	LLM LLMConfig `yaml:"llm" mapstructure:"llm"`

	// Redash configures the optional BI query-store client.
	// When APIKey is empty the redash-backed tools report a configuration error.
	Redash RedashConfig `yaml:"redash" mapstructure:"redash"`

	// ACL configures access control: rules file, cache TTLs, identity fallback.
	ACL ACLConfig `yaml:"acl" mapstructure:"acl"`

	// Bridge configures the outbound MCP client used when the agent loop
	// talks to a remote tool server instead of the in-process catalog.
	Bridge BridgeConfig `yaml:"bridge" mapstructure:"bridge"`

	// DevMode enables development features (debug logging, permissive CORS).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on.
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// ShutdownTimeout bounds graceful shutdown (e.g. "10s").
	// Defaults to "10s".
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"omitempty"`
}

// DatabaseConfig configures the relational pool.
// The pool is strictly read-only: every query runs inside a read-only
// transaction regardless of these settings.
type DatabaseConfig struct {
	// Host is the database server hostname.
	Host string `yaml:"host" mapstructure:"host" validate:"required"`

	// Port is the database server port. Defaults to 5432.
	Port int `yaml:"port" mapstructure:"port" validate:"omitempty,min=1,max=65535"`

	// User is the database role to connect as.
	User string `yaml:"user" mapstructure:"user" validate:"required"`

	// Password is the database password. Usually set via
	// DB_CONNECT_DATABASE_PASSWORD rather than YAML.
	Password string `yaml:"password" mapstructure:"password"`

	// Name is the database to connect to.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// SSLMode is the lib/pq sslmode value. Defaults to "require".
	SSLMode string `yaml:"ssl_mode" mapstructure:"ssl_mode" validate:"omitempty,oneof=disable require verify-ca verify-full"`

	// MaxOpenConns caps concurrent connections. Defaults to 10.
	MaxOpenConns int `yaml:"max_open_conns" mapstructure:"max_open_conns" validate:"omitempty,min=1"`

	// MaxIdleConns caps idle pooled connections. Defaults to 5.
	MaxIdleConns int `yaml:"max_idle_conns" mapstructure:"max_idle_conns" validate:"omitempty,min=1"`

	// ConnMaxLifetime bounds connection reuse (e.g. "30m"). Defaults to "30m".
	ConnMaxLifetime string `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime" validate:"omitempty"`

	// QueryTimeout bounds a single query execution (e.g. "30s"). Defaults to "30s".
	QueryTimeout string `yaml:"query_timeout" mapstructure:"query_timeout" validate:"omitempty"`
}

// MongoConfig configures the conversation document store.
type MongoConfig struct {
	// URI is the mongodb:// connection string.
	URI string `yaml:"uri" mapstructure:"uri" validate:"required"`

	// Database is the database name. Defaults to "db_connect".
	Database string `yaml:"database" mapstructure:"database"`

	// OpTimeout bounds a single store operation (e.g. "5s"). Defaults to "5s".
	OpTimeout string `yaml:"op_timeout" mapstructure:"op_timeout" validate:"omitempty"`
}

// LLMConfig configures the Anthropic messages client.
type LLMConfig struct {
	// APIKey is the Anthropic API key. Usually set via DB_CONNECT_LLM_API_KEY.
	APIKey string `yaml:"api_key" mapstructure:"api_key" validate:"required"`

	// Model is the model identifier. Defaults to "claude-sonnet-4-20250514".
	Model string `yaml:"model" mapstructure:"model"`

	// MaxTokens caps the response size per round. Defaults to 4096.
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens" validate:"omitempty,min=1"`
}

// RedashConfig configures the BI query-store client.
type RedashConfig struct {
	// BaseURL is the Redash instance root (e.g. "https://redash.example.com").
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`

	// APIKey authenticates against the Redash API.
	// Empty disables the redash-backed tools with a descriptive error.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`

	// Timeout bounds a single Redash request (e.g. "15s"). Defaults to "15s".
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty"`
}

// ACLConfig configures access control.
type ACLConfig struct {
	// ConfigPath is the path to the ACL rules YAML file.
	ConfigPath string `yaml:"config_path" mapstructure:"config_path" validate:"required"`

	// CacheTTL is how long resolved staff ACLs stay cached (e.g. "5m").
	// Defaults to "5m".
	CacheTTL string `yaml:"cache_ttl" mapstructure:"cache_ttl" validate:"omitempty"`

	// NegativeCacheTTL is how long "staff not found" results stay cached.
	// Kept short so newly added staff are picked up quickly. Defaults to "30s".
	NegativeCacheTTL string `yaml:"negative_cache_ttl" mapstructure:"negative_cache_ttl" validate:"omitempty"`

	// FallbackUserEmail is the identity of last resort for MCP calls that
	// carry no email in params or session (single-user pipe setups).
	FallbackUserEmail string `yaml:"fallback_user_email" mapstructure:"fallback_user_email" validate:"omitempty,email"`
}

// BridgeConfig configures the outbound MCP client bridge.
type BridgeConfig struct {
	// ServerURL is the SSE endpoint of the remote MCP tool server
	// (e.g. "http://localhost:8080/sse"). Empty means the agent loop uses
	// the in-process tool catalog directly.
	ServerURL string `yaml:"server_url" mapstructure:"server_url" validate:"omitempty,url"`

	// ConnectTimeout bounds the SSE handshake (e.g. "10s"). Defaults to "10s".
	ConnectTimeout string `yaml:"connect_timeout" mapstructure:"connect_timeout" validate:"omitempty"`

	// CallTimeout bounds a single bridged tool call (e.g. "60s"). Defaults to "60s".
	CallTimeout string `yaml:"call_timeout" mapstructure:"call_timeout" validate:"omitempty"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	// Server defaults. Bind to localhost only unless told otherwise.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "require"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == "" {
		c.Database.ConnMaxLifetime = "30m"
	}
	if c.Database.QueryTimeout == "" {
		c.Database.QueryTimeout = "30s"
	}

	// Mongo defaults
	if c.Mongo.Database == "" {
		c.Mongo.Database = "db_connect"
	}
	if c.Mongo.OpTimeout == "" {
		c.Mongo.OpTimeout = "5s"
	}

	// LLM defaults
	if c.LLM.Model == "" {
		c.LLM.Model = "claude-sonnet-4-20250514"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}

	// Redash defaults
	if c.Redash.Timeout == "" {
		c.Redash.Timeout = "15s"
	}

	// ACL defaults
	if c.ACL.CacheTTL == "" {
		c.ACL.CacheTTL = "5m"
	}
	if c.ACL.NegativeCacheTTL == "" {
		c.ACL.NegativeCacheTTL = "30s"
	}

	// Bridge defaults
	if c.Bridge.ConnectTimeout == "" {
		c.Bridge.ConnectTimeout = "10s"
	}
	if c.Bridge.CallTimeout == "" {
		c.Bridge.CallTimeout = "60s"
	}
}

// SetDevDefaults applies permissive defaults for development mode.
// Applied BEFORE validation so required fields are satisfied when
// running against local services.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}

	if c.Server.LogLevel == "" || c.Server.LogLevel == "info" {
		c.Server.LogLevel = "debug"
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.User == "" {
		c.Database.User = "postgres"
	}
	if c.Database.Name == "" {
		c.Database.Name = "postgres"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = "mongodb://localhost:27017"
	}
	if c.ACL.ConfigPath == "" {
		c.ACL.ConfigPath = "acl.yaml"
	}
}

// DSN renders the lib/pq connection string.
// Kept as key=value form so an empty password is representable.
func (d *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
	if d.Password != "" {
		dsn += " password=" + d.Password
	}
	return dsn
}
