package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

var (
	// ErrNotConfigured means the guild has no connection string set.
	ErrNotConfigured = errors.New("storage: no database configured for guild")
	// ErrConnectivity means pool creation or validation failed.
	ErrConnectivity = errors.New("storage: database connection failed")
)

// Pool size bounds for every per-guild pool.
const (
	poolMinConns = 2
	poolMaxConns = 10
)

// DB is the query surface shared by *pgxpool.Pool and test doubles.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Pool is a DB whose underlying connections can be released.
type Pool interface {
	DB
	Close()
}

// ConnStringSource yields the stored connection string for a guild.
// Implemented by config.GuildStore.
type ConnStringSource interface {
	ConnString(guildID int64) (string, bool)
}

type connectFunc func(ctx context.Context, dsn string) (Pool, error)

// Registry owns one database pool per guild. Pools are created lazily on
// first use and cached; creation is guarded per guild so concurrent first
// callers observe exactly one pool.
type Registry struct {
	logger  *zap.SugaredLogger
	guilds  ConnStringSource
	connect connectFunc

	mu      sync.Mutex
	entries map[int64]*poolEntry
}

type poolEntry struct {
	mu   sync.Mutex
	pool Pool
}

func NewRegistry(logger *zap.SugaredLogger, guilds ConnStringSource) *Registry {
	return &Registry{
		logger:  logger,
		guilds:  guilds,
		connect: connectPgx,
		entries: make(map[int64]*poolEntry),
	}
}

// Pool returns the guild's pool, creating and validating it on first use.
// It never returns a raw driver error: a missing connection string maps to
// ErrNotConfigured and any creation or validation failure is logged and maps
// to ErrConnectivity.
func (r *Registry) Pool(ctx context.Context, guildID int64) (DB, error) {
	e := r.entry(guildID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pool != nil {
		return e.pool, nil
	}

	dsn, ok := r.guilds.ConnString(guildID)
	if !ok {
		r.logger.Warnf("No database connection string set for guild %d.", guildID)
		return nil, ErrNotConfigured
	}

	pool, err := r.connect(ctx, dsn)
	if err != nil {
		r.logger.Errorf("Failed to establish database pool for guild %d: %s.", guildID, err)
		return nil, ErrConnectivity
	}

	r.logger.Infof("Database pool established and tested for guild %d.", guildID)
	e.pool = pool
	return pool, nil
}

// ClosePool removes the guild's cached pool, releasing all underlying
// connections. Calling it for a guild without a pool is a no-op.
func (r *Registry) ClosePool(guildID int64) {
	r.mu.Lock()
	e, ok := r.entries[guildID]
	delete(r.entries, guildID)
	r.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pool != nil {
		e.pool.Close()
		e.pool = nil
		r.logger.Infof("Closed database pool for guild %d.", guildID)
	}
}

// Close releases every cached pool. Used at process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[int64]*poolEntry)
	r.mu.Unlock()

	for guildID, e := range entries {
		e.mu.Lock()
		if e.pool != nil {
			e.pool.Close()
			e.pool = nil
			r.logger.Infof("Closed database pool for guild %d.", guildID)
		}
		e.mu.Unlock()
	}
}

func (r *Registry) entry(guildID int64) *poolEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[guildID]
	if !ok {
		e = &poolEntry{}
		r.entries[guildID] = e
	}
	return e
}

// connectPgx creates a bounded pgx pool and validates it with one round trip.
func connectPgx(ctx context.Context, dsn string) (Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MinConns = poolMinConns
	cfg.MaxConns = poolMaxConns

	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, `select 1;`); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
