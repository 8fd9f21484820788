// Package dbpool maintains one *pgxpool.Pool per database name, created
// lazily on first use and evicted least-recently-used when the manager's
// pool-count ceiling is reached.
package dbpool

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stonescriptdb/gateway/internal/config"
	"github.com/stonescriptdb/gateway/internal/gatewayerr"
	"github.com/stonescriptdb/gateway/internal/registry"
	"github.com/stonescriptdb/gateway/internal/routing"
	"github.com/stonescriptdb/gateway/pkg/logger"
)

var router = routing.New()

type poolEntry struct {
	pool     *pgxpool.Pool
	mu       sync.Mutex
	lastUsed time.Time
}

func (e *poolEntry) touch() {
	e.mu.Lock()
	e.lastUsed = time.Now()
	e.mu.Unlock()
}

func (e *poolEntry) lastUsedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastUsed
}

// Manager is the gateway's pool-of-pools: it owns one dedicated admin pool
// (connected to the "postgres" maintenance database, used unconditionally
// for CREATE DATABASE/DROP DATABASE) and a bounded set of per-database
// pools opened against whichever credentials the platform registry
// resolves for that database's owning platform.
type Manager struct {
	cfg      *config.Config
	registry *registry.Registry
	log      *logger.Logger

	adminPool *pgxpool.Pool
	baseURL   *url.URL

	mu               sync.RWMutex
	pools            map[string]*poolEntry
	totalConnections uint32

	startedAt time.Time
}

// New connects the admin pool and returns a ready Manager. The admin pool
// always targets the "postgres" maintenance database on the configured
// host, regardless of what DatabaseURL's own path names.
func New(ctx context.Context, cfg *config.Config, reg *registry.Registry, log *logger.Logger) (*Manager, error) {
	base, err := url.Parse(cfg.DatabaseURL)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindConnectionFailed, err, "parsing DATABASE_URL")
	}

	m := &Manager{
		cfg:       cfg,
		registry:  reg,
		log:       log,
		baseURL:   base,
		pools:     make(map[string]*poolEntry),
		startedAt: time.Now(),
	}

	adminParams, err := m.connParamsFor("postgres")
	if err != nil {
		return nil, err
	}
	adminPool, err := newPool(ctx, adminParams, cfg)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindConnectionFailed, err, "connecting admin pool")
	}
	if err := adminPool.Ping(ctx); err != nil {
		adminPool.Close()
		return nil, gatewayerr.Wrap(gatewayerr.KindConnectionFailed, err, "pinging admin pool")
	}
	m.adminPool = adminPool

	return m, nil
}

// AdminPool returns the dedicated maintenance-database pool.
func (m *Manager) AdminPool() *pgxpool.Pool { return m.adminPool }

// GetPool returns the pool for a database, creating it on first use.
// Concurrent first callers for the same database name are guaranteed to
// see exactly one pool created between them.
func (m *Manager) GetPool(ctx context.Context, database string) (*pgxpool.Pool, error) {
	m.mu.RLock()
	if e, ok := m.pools[database]; ok {
		e.touch()
		m.mu.RUnlock()
		return e.pool, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.pools[database]; ok {
		e.touch()
		return e.pool, nil
	}

	pool, err := m.createPoolLocked(ctx, database)
	if err != nil {
		return nil, err
	}
	m.pools[database] = &poolEntry{pool: pool, lastUsed: time.Now()}
	return pool, nil
}

// createPoolLocked must be called with m.mu held for writing.
func (m *Manager) createPoolLocked(ctx context.Context, database string) (*pgxpool.Pool, error) {
	if m.totalConnections+m.cfg.MaxConnectionsPerPool > m.cfg.MaxTotalConnections {
		return nil, gatewayerr.Newf(gatewayerr.KindPoolExhausted,
			"opening a pool for %q would exceed the %d connection ceiling", database, m.cfg.MaxTotalConnections).WithDatabase(database)
	}

	if len(m.pools) >= m.cfg.MaxPools {
		if !m.evictLRULocked() {
			return nil, gatewayerr.Newf(gatewayerr.KindPoolExhausted,
				"at the %d pool ceiling and nothing eligible to evict", m.cfg.MaxPools).WithDatabase(database)
		}
	}

	params, err := m.connParamsFor(database)
	if err != nil {
		return nil, err
	}

	pool, err := newPool(ctx, params, m.cfg)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindConnectionFailed, err, "opening pool for "+database).WithDatabase(database)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, gatewayerr.Wrap(gatewayerr.KindConnectionFailed, err, "pinging pool for "+database).WithDatabase(database)
	}

	m.totalConnections += m.cfg.MaxConnectionsPerPool
	m.log.Infof("opened pool for database %s (%d/%d pools, %d/%d connections)",
		database, len(m.pools)+1, m.cfg.MaxPools, m.totalConnections, m.cfg.MaxTotalConnections)
	return pool, nil
}

// evictLRULocked closes and removes the least-recently-used pool. Called
// with m.mu held. Returns false if there is nothing to evict.
func (m *Manager) evictLRULocked() bool {
	oldestKey, ok := oldestPoolKey(m.pools)
	if !ok {
		return false
	}

	m.pools[oldestKey].pool.Close()
	delete(m.pools, oldestKey)
	if m.totalConnections >= m.cfg.MaxConnectionsPerPool {
		m.totalConnections -= m.cfg.MaxConnectionsPerPool
	}
	m.log.Infof("evicted least-recently-used pool for database %s", oldestKey)
	return true
}

// CleanupIdlePools closes and removes every pool whose last use is older
// than cfg.PoolIdleTimeout. This is the idle-timeout half of eviction,
// independent of evictLRULocked: LRU only fires under cap pressure at
// pool-creation time, so a tenant database that goes quiet but never
// triggers cap pressure would otherwise sit in the map indefinitely,
// holding its slice of MaxPools/MaxTotalConnections forever. Meant to be
// called periodically (e.g. from a ticker in cmd/gateway's serve loop).
func (m *Manager) CleanupIdlePools() {
	deadline := time.Now().Add(-m.cfg.PoolIdleTimeout)

	m.mu.Lock()
	stale := idlePoolKeys(m.pools, deadline)
	for _, key := range stale {
		m.pools[key].pool.Close()
		delete(m.pools, key)
		if m.totalConnections >= m.cfg.MaxConnectionsPerPool {
			m.totalConnections -= m.cfg.MaxConnectionsPerPool
		}
	}
	m.mu.Unlock()

	for _, key := range stale {
		m.log.Infof("closed idle pool for database %s (idle past %s)", key, m.cfg.PoolIdleTimeout)
	}
}

// idlePoolKeys returns the keys of every pool last used before deadline.
func idlePoolKeys(pools map[string]*poolEntry, deadline time.Time) []string {
	var stale []string
	for key, e := range pools {
		if e.lastUsedAt().Before(deadline) {
			stale = append(stale, key)
		}
	}
	return stale
}

// oldestPoolKey returns the key of the pool with the oldest lastUsed
// timestamp, or ok=false if pools is empty.
func oldestPoolKey(pools map[string]*poolEntry) (key string, ok bool) {
	var oldestAt time.Time
	for k, e := range pools {
		at := e.lastUsedAt()
		if !ok || at.Before(oldestAt) {
			key, oldestAt, ok = k, at, true
		}
	}
	return key, ok
}

// connParams is the resolved set of individual fields pgxpool.ConnConfig
// wants for a given database: the gateway's configured host/port/user with
// the database name swapped for the target, and the credentials swapped
// for whatever the platform registry resolves for the database's owning
// platform (or the base URL's own credentials if the platform has none
// registered).
type connParams struct {
	host     string
	port     uint16
	database string
	user     string
	password string
}

func (m *Manager) connParamsFor(database string) (connParams, error) {
	platform := router.PlatformFromDatabase(database)

	p := connParams{
		host:     m.baseURL.Hostname(),
		port:     5432,
		database: database,
		user:     m.baseURL.User.Username(),
	}
	if pw, ok := m.baseURL.User.Password(); ok {
		p.password = pw
	}
	if portStr := m.baseURL.Port(); portStr != "" {
		if n, err := strconv.Atoi(portStr); err == nil {
			p.port = uint16(n)
		}
	}

	if platform != "" && m.registry.IsRegistered(platform) {
		user, password, ok, err := m.registry.ResolvedCredentials(platform)
		if err != nil {
			return connParams{}, gatewayerr.Wrap(gatewayerr.KindInternal, err, "resolving credentials for platform "+platform)
		}
		if ok {
			p.user, p.password = user, password
		}
	}

	return p, nil
}

// newPool builds a pool by setting ConnConfig's fields individually rather
// than parsing a DSN string, avoiding special-character URL-encoding bugs
// in usernames or passwords, matching the teacher's pkg/database/postgres.go.
func newPool(ctx context.Context, p connParams, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig("")
	if err != nil {
		return nil, err
	}
	poolCfg.ConnConfig.Host = p.host
	poolCfg.ConnConfig.Port = p.port
	poolCfg.ConnConfig.Database = p.database
	poolCfg.ConnConfig.User = p.user
	poolCfg.ConnConfig.Password = p.password
	poolCfg.ConnConfig.ConnectTimeout = cfg.PoolConnectTimeout

	poolCfg.MaxConns = int32(cfg.MaxConnectionsPerPool)
	poolCfg.MinConns = cfg.MinIdleConnections
	poolCfg.MaxConnLifetime = cfg.PoolMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.PoolIdleTimeout

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// ActivePools reports how many per-database pools are currently open.
func (m *Manager) ActivePools() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pools)
}

// TotalConnections reports the sum of each open pool's configured
// capacity, not the number of connections actually established (pgxpool
// opens connections lazily up to MaxConns).
func (m *Manager) TotalConnections() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totalConnections
}

// Uptime reports how long the manager has been running.
func (m *Manager) Uptime() time.Duration { return time.Since(m.startedAt) }

// Close closes every open pool and the admin pool.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.pools {
		e.pool.Close()
	}
	m.pools = make(map[string]*poolEntry)
	m.adminPool.Close()
}

// Ping verifies the admin connection is reachable, used for the health
// snapshot's postgres_connected field.
func (m *Manager) Ping(ctx context.Context) bool {
	return m.adminPool.Ping(ctx) == nil
}
