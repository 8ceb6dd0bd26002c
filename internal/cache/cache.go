package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/IliaW/name-check-worker/config"
	"github.com/IliaW/name-check-worker/internal/model"
	jsoniter "github.com/json-iterator/go"
	gocache "github.com/patrickmn/go-cache"
)

// CachedClient stores finished checks keyed by the request payload.
type CachedClient interface {
	Get(payload any) (*model.NameCheckResult, bool)
	Set(payload any, result *model.NameCheckResult)
	Close()
}

var errCacheMiss = errors.New("cache miss")

// backend is a shared cache server.
type backend interface {
	get(key string) ([]byte, error)
	set(key string, value []byte, ttl time.Duration) error
	close() error
	name() string
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client writes to the configured backend and keeps serving from process memory once the backend fails.
type Client struct {
	backend  backend
	disabled atomic.Bool
	local    *gocache.Cache
	ttl      time.Duration
	log      *slog.Logger
}

// New connects to the backend named in cfg. An unreachable backend leaves the client on local storage.
func New(cfg *config.CacheConfig, log *slog.Logger) *Client {
	c := newClient(nil, cfg.Ttl, log)
	var (
		b   backend
		err error
	)
	switch cfg.Backend {
	case "memcached":
		b, err = newMemcachedBackend(cfg.Servers, log)
	case "redis":
		b, err = newRedisBackend(cfg.RedisURL, log)
	default:
		log.Info("using in-memory cache.")
		return c
	}
	if err != nil {
		log.Warn("cache backend unavailable. falling back to in-memory cache.", slog.String("backend", cfg.Backend),
			slog.String("err", err.Error()))
		return c
	}
	c.backend = b
	return c
}

func newClient(b backend, ttl time.Duration, log *slog.Logger) *Client {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Client{
		backend: b,
		local:   gocache.New(ttl, 10*time.Minute),
		ttl:     ttl,
		log:     log,
	}
}

func (c *Client) Get(payload any) (*model.NameCheckResult, bool) {
	key, err := Key(payload)
	if err != nil {
		c.log.Error("failed to build cache key.", slog.String("err", err.Error()))
		return nil, false
	}

	var data []byte
	if b := c.shared(); b != nil {
		data, err = b.get(key)
		if err != nil && !errors.Is(err, errCacheMiss) {
			c.disable(b, "get", err)
		}
	}
	if data == nil {
		if v, ok := c.local.Get(key); ok {
			data = v.([]byte)
		}
	}
	if data == nil {
		c.log.Debug("cache miss.", slog.String("key", key))
		return nil, false
	}

	result := &model.NameCheckResult{}
	if err = json.Unmarshal(data, result); err != nil {
		c.log.Error("failed to decode cached result.", slog.String("key", key), slog.String("err", err.Error()))
		return nil, false
	}
	result.Cached = true
	c.log.Debug("cache hit.", slog.String("key", key))
	return result, true
}

func (c *Client) Set(payload any, result *model.NameCheckResult) {
	key, err := Key(payload)
	if err != nil {
		c.log.Error("failed to build cache key.", slog.String("err", err.Error()))
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		c.log.Error("failed to encode result.", slog.String("err", err.Error()))
		return
	}

	if b := c.shared(); b != nil {
		if err = b.set(key, data, c.ttl); err == nil {
			c.log.Debug("result saved to cache.", slog.String("key", key))
			return
		}
		c.disable(b, "set", err)
	}
	c.local.Set(key, data, c.ttl)
}

func (c *Client) Close() {
	if c.backend == nil {
		return
	}
	c.log.Info("closing cache connection.", slog.String("backend", c.backend.name()))
	if err := c.backend.close(); err != nil {
		c.log.Error("failed to close cache connection.", slog.String("err", err.Error()))
	}
}

func (c *Client) shared() backend {
	if c.backend == nil || c.disabled.Load() {
		return nil
	}
	return c.backend
}

func (c *Client) disable(b backend, op string, err error) {
	if c.disabled.CompareAndSwap(false, true) {
		c.log.Error("cache backend failed. using in-memory cache from now on.", slog.String("backend", b.name()),
			slog.String("op", op), slog.String("err", err.Error()))
	}
}

// Key returns the hex sha256 of the JSON encoding of payload. Map keys are encoded in sorted order.
func Key(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
