package redis

import (
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/moodmuffin/strangerchat/store"
)

// Config represents the Redis store config structure.
type Config struct {
	Address     string        `koanf:"address"`
	Password    string        `koanf:"password"`
	DB          int           `koanf:"db"`
	ActiveConns int           `koanf:"active_conns"`
	IdleConns   int           `koanf:"idle_conns"`
	Timeout     time.Duration `koanf:"timeout"`

	PrefixRoom string `koanf:"prefix_room"`
	PrefixKV   string `koanf:"prefix_kv"`
}

// Redis represents the Redis implementation of the Store interface.
type Redis struct {
	cfg  *Config
	pool *redis.Pool
}

type room struct {
	CreatedAt string `redis:"created_at"`
	ClosedAt  string `redis:"closed_at"`
	Reason    string `redis:"reason"`
	Messages  int    `redis:"messages"`
}

// New returns a new Redis store.
func New(cfg Config) (*Redis, error) {
	pool := &redis.Pool{
		Wait:      true,
		MaxActive: cfg.ActiveConns,
		MaxIdle:   cfg.IdleConns,
		Dial: func() (redis.Conn, error) {
			return redis.Dial(
				"tcp",
				cfg.Address,
				redis.DialPassword(cfg.Password),
				redis.DialConnectTimeout(cfg.Timeout),
				redis.DialReadTimeout(cfg.Timeout),
				redis.DialWriteTimeout(cfg.Timeout),
				redis.DialDatabase(cfg.DB),
			)
		},
	}
	return NewWithPool(cfg, pool)
}

// NewWithPool returns a new Redis store on an existing connection pool.
func NewWithPool(cfg Config, pool *redis.Pool) (*Redis, error) {
	// Test connection.
	c := pool.Get()
	defer c.Close()

	if _, err := c.Do("PING"); err != nil {
		return nil, err
	}
	return &Redis{cfg: &cfg, pool: pool}, nil
}

// Close closes the connection pool.
func (r *Redis) Close() error {
	return r.pool.Close()
}

// AddRoom adds a room to the store.
func (r *Redis) AddRoom(room store.Room, ttl time.Duration) error {
	c := r.pool.Get()
	defer c.Close()

	key := fmt.Sprintf(r.cfg.PrefixRoom, room.ID)
	c.Send("MULTI")
	c.Send("HMSET", key,
		"created_at", room.CreatedAt.Format(time.RFC3339Nano),
		"messages", room.Messages)
	c.Send("EXPIRE", key, int(ttl.Seconds()))
	_, err := c.Do("EXEC")
	return err
}

// CloseRoom records a room's closing time, reason and message count. The
// room's TTL is left untouched.
func (r *Redis) CloseRoom(room store.Room) error {
	c := r.pool.Get()
	defer c.Close()

	key := fmt.Sprintf(r.cfg.PrefixRoom, room.ID)
	ok, err := redis.Bool(c.Do("EXISTS", key))
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrRoomNotFound
	}

	_, err = c.Do("HMSET", key,
		"closed_at", room.ClosedAt.Format(time.RFC3339Nano),
		"reason", room.Reason,
		"messages", room.Messages)
	return err
}

// GetRoom gets a room from the store.
func (r *Redis) GetRoom(id string) (store.Room, error) {
	c := r.pool.Get()
	defer c.Close()

	var (
		out  store.Room
		room room
		key  = fmt.Sprintf(r.cfg.PrefixRoom, id)
	)
	res, err := redis.Values(c.Do("HGETALL", key))
	if err != nil {
		return out, err
	}
	if len(res) == 0 {
		return out, store.ErrRoomNotFound
	}
	if err := redis.ScanStruct(res, &room); err != nil {
		return out, err
	}

	created, err := time.Parse(time.RFC3339Nano, room.CreatedAt)
	if err != nil {
		return out, err
	}
	out = store.Room{
		ID:        id,
		CreatedAt: created,
		Reason:    room.Reason,
		Messages:  room.Messages,
	}
	if room.ClosedAt != "" {
		closed, err := time.Parse(time.RFC3339Nano, room.ClosedAt)
		if err != nil {
			return out, err
		}
		out.ClosedAt = closed
	}
	return out, nil
}

// Get value from a key.
func (r *Redis) Get(key string) ([]byte, error) {
	c := r.pool.Get()
	defer c.Close()

	b, err := redis.Bytes(c.Do("GET", fmt.Sprintf(r.cfg.PrefixKV, key)))
	if err == redis.ErrNil {
		return nil, store.ErrKeyNotFound
	}
	return b, err
}

// Set a value.
func (r *Redis) Set(key string, data []byte) error {
	c := r.pool.Get()
	defer c.Close()

	_, err := c.Do("SET", fmt.Sprintf(r.cfg.PrefixKV, key), data)
	return err
}
