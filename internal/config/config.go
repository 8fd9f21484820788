// Package config loads the gateway's process-level configuration from
// environment variables, with an optional YAML overlay file.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Config is the gateway's full process configuration.
type Config struct {
	DatabaseURL string

	GatewayHost string
	GatewayPort int

	MaxConnectionsPerPool uint32
	MinIdleConnections    int32
	MaxTotalConnections   uint32
	MaxPools              int
	PoolIdleTimeout       time.Duration
	PoolMaxLifetime       time.Duration
	PoolConnectTimeout    time.Duration

	AllowedNetworks  []*net.IPNet
	DataDir          string
	AdminToken       string
	AllowedAdminIPs  []*net.IPNet
	LogLevel         string
}

// FromEnv builds a Config from environment variables, matching the
// gateway's documented defaults.
func FromEnv() (*Config, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		host := getEnvDefault("DB_HOST", "localhost")
		port := getEnvDefault("DB_PORT", "5432")
		name := getEnvDefault("DB_NAME", "postgres")
		user := getEnvDefault("DB_USER", "gateway_user")
		password := getEnvDefault("DB_PASSWORD", "password")
		databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, escapeURLComponent(password), host, port, name)
	}

	gatewayHost := getEnvDefault("GATEWAY_HOST", "127.0.0.1")
	gatewayPort := getEnvIntDefault("GATEWAY_PORT", 9000)

	maxPerPool := getEnvIntDefault("MAX_CONNECTIONS_PER_POOL", 10)
	minIdle := getEnvIntDefault("MIN_IDLE_CONNECTIONS", 1)
	maxTotal := getEnvIntDefault("MAX_TOTAL_CONNECTIONS", 200)
	maxPools := getEnvIntDefault("MAX_POOLS", 100)

	idleSecs := getEnvIntDefault("POOL_IDLE_TIMEOUT_SECS", 1800)
	lifetimeSecs := getEnvIntDefault("POOL_MAX_LIFETIME_SECS", 3600)
	connectTimeoutSecs := getEnvIntDefault("POOL_CONNECT_TIMEOUT_SECS", 5)

	allowedNetworks, err := parseCIDRList(getEnvDefault("ALLOWED_NETWORKS", "127.0.0.0/8,::1/128,10.0.1.0/24"))
	if err != nil {
		return nil, fmt.Errorf("parsing ALLOWED_NETWORKS: %w", err)
	}

	dataDir := getEnvDefault("DATA_DIR", "./data")
	adminToken := os.Getenv("ADMIN_TOKEN")

	allowedAdminIPs, err := parseCIDRList(getEnvDefault("ALLOWED_ADMIN_IPS", "10.0.1.0/24"))
	if err != nil {
		return nil, fmt.Errorf("parsing ALLOWED_ADMIN_IPS: %w", err)
	}

	logLevel := getEnvDefault("LOG_LEVEL", "INFO")

	cfg := &Config{
		DatabaseURL:           databaseURL,
		GatewayHost:           gatewayHost,
		GatewayPort:           gatewayPort,
		MaxConnectionsPerPool: uint32(maxPerPool),
		MinIdleConnections:    int32(minIdle),
		MaxTotalConnections:   uint32(maxTotal),
		MaxPools:              maxPools,
		PoolIdleTimeout:       time.Duration(idleSecs) * time.Second,
		PoolMaxLifetime:       time.Duration(lifetimeSecs) * time.Second,
		PoolConnectTimeout:    time.Duration(connectTimeoutSecs) * time.Second,
		AllowedNetworks:       allowedNetworks,
		DataDir:               dataDir,
		AdminToken:            adminToken,
		AllowedAdminIPs:       allowedAdminIPs,
		LogLevel:              logLevel,
	}

	if overlay := os.Getenv("CONFIG_FILE"); overlay != "" {
		if err := cfg.mergeYAMLFile(overlay); err != nil {
			return nil, fmt.Errorf("loading CONFIG_FILE %q: %w", overlay, err)
		}
	}

	return cfg, nil
}

// yamlOverlay mirrors the subset of Config that may be overridden by an
// on-disk YAML file, layered on top of the environment-derived defaults.
type yamlOverlay struct {
	GatewayHost           string   `yaml:"gateway_host"`
	GatewayPort           int      `yaml:"gateway_port"`
	MaxConnectionsPerPool int      `yaml:"max_connections_per_pool"`
	MinIdleConnections    int      `yaml:"min_idle_connections"`
	MaxTotalConnections   int      `yaml:"max_total_connections"`
	MaxPools              int      `yaml:"max_pools"`
	DataDir               string   `yaml:"data_dir"`
	AdminToken            string   `yaml:"admin_token"`
	AllowedNetworks       []string `yaml:"allowed_networks"`
	AllowedAdminIPs       []string `yaml:"allowed_admin_ips"`
	LogLevel              string   `yaml:"log_level"`
}

func (c *Config) mergeYAMLFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var overlay yamlOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return err
	}

	if overlay.GatewayHost != "" {
		c.GatewayHost = overlay.GatewayHost
	}
	if overlay.GatewayPort != 0 {
		c.GatewayPort = overlay.GatewayPort
	}
	if overlay.MaxConnectionsPerPool != 0 {
		c.MaxConnectionsPerPool = uint32(overlay.MaxConnectionsPerPool)
	}
	if overlay.MinIdleConnections != 0 {
		c.MinIdleConnections = int32(overlay.MinIdleConnections)
	}
	if overlay.MaxTotalConnections != 0 {
		c.MaxTotalConnections = uint32(overlay.MaxTotalConnections)
	}
	if overlay.MaxPools != 0 {
		c.MaxPools = overlay.MaxPools
	}
	if overlay.DataDir != "" {
		c.DataDir = overlay.DataDir
	}
	if overlay.AdminToken != "" {
		c.AdminToken = overlay.AdminToken
	}
	if overlay.LogLevel != "" {
		c.LogLevel = overlay.LogLevel
	}
	if len(overlay.AllowedNetworks) > 0 {
		nets, err := parseCIDRList(strings.Join(overlay.AllowedNetworks, ","))
		if err != nil {
			return err
		}
		c.AllowedNetworks = nets
	}
	if len(overlay.AllowedAdminIPs) > 0 {
		nets, err := parseCIDRList(strings.Join(overlay.AllowedAdminIPs, ","))
		if err != nil {
			return err
		}
		c.AllowedAdminIPs = nets
	}
	return nil
}

// SocketAddr returns the "host:port" string the HTTP server should bind to.
func (c *Config) SocketAddr() string {
	return fmt.Sprintf("%s:%d", c.GatewayHost, c.GatewayPort)
}

// AdminTokenFingerprint returns a bcrypt hash of the configured admin
// token, safe to log or persist alongside the config for operator
// correlation without ever exposing the token itself. The request path
// never uses this: incoming bearer tokens are always checked against
// AdminToken with security's constant-time compare.
func (c *Config) AdminTokenFingerprint() (string, error) {
	if c.AdminToken == "" {
		return "", nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(c.AdminToken), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing admin token: %w", err)
	}
	return string(hash), nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func parseCIDRList(s string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, part := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		_, ipnet, err := net.ParseCIDR(trimmed)
		if err != nil {
			continue
		}
		nets = append(nets, ipnet)
	}
	return nets, nil
}

// escapeURLComponent percent-encodes a URL user-info component (e.g. a
// password) without pulling in net/url's more permissive encoder, matching
// exactly the characters PostgreSQL connection strings require escaped.
func escapeURLComponent(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-' || c == '.' || c == '_' || c == '~':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
