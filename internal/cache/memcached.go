package cache

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

type memcachedBackend struct {
	client *memcache.Client
	log    *slog.Logger
}

func newMemcachedBackend(servers string, log *slog.Logger) (*memcachedBackend, error) {
	log.Info("connecting to memcached...")
	ss := new(memcache.ServerList)
	if err := ss.SetServers(strings.Split(servers, ",")...); err != nil {
		return nil, err
	}
	mc := &memcachedBackend{client: memcache.NewFromSelector(ss), log: log}
	mc.log.Info("pinging the memcached.")
	if err := mc.client.Ping(); err != nil {
		return nil, err
	}
	mc.log.Info("connected to memcached!")
	return mc, nil
}

func (mc *memcachedBackend) name() string { return "memcached" }

func (mc *memcachedBackend) get(key string) ([]byte, error) {
	item, err := mc.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, errCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

func (mc *memcachedBackend) set(key string, value []byte, ttl time.Duration) error {
	return mc.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(ttl.Seconds()),
	})
}

func (mc *memcachedBackend) close() error {
	return mc.client.Close()
}
