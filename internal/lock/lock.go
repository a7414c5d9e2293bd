package lock

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultPrefix — префикс ключей блокировок.
	DefaultPrefix = "spectra:lock:"

	// DefaultTTL — время жизни lease без продления.
	DefaultTTL = 30 * time.Second

	// DefaultRetryInterval — интервал повторной попытки при ожидании.
	DefaultRetryInterval = 100 * time.Millisecond
)

// Снятие и продление только при совпадении токена держателя.
var (
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)
	extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)
)

// Config — настройки Locker.
type Config struct {
	// Client — клиент Redis (обязателен).
	Client *redis.Client

	// Prefix — префикс ключей (по умолчанию DefaultPrefix).
	Prefix string

	// TTL — время жизни lease (по умолчанию DefaultTTL).
	TTL time.Duration

	// Wait — сколько ждать освобождения. 0 — одна попытка.
	Wait time.Duration

	// Logger — логгер (по умолчанию slog.Default()).
	Logger *slog.Logger
}

// Locker — эксклюзивные блокировки на Redis (SET NX PX).
type Locker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
	logger *slog.Logger
}

// New создаёт Locker.
func New(cfg Config) *Locker {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Locker{
		client: cfg.Client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		wait:   cfg.Wait,
		logger: cfg.Logger,
	}
}

// Lease — удерживаемая блокировка.
type Lease struct {
	locker *Locker
	key    string
	token  string

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Key возвращает ключ Redis блокировки.
func (l *Lease) Key() string { return l.key }

// Acquire захватывает блокировку resource.
// Если ресурс занят и Wait истёк — ErrLocked.
func (l *Locker) Acquire(ctx context.Context, resource string) (*Lease, error) {
	key := l.prefix + resource
	token := uuid.NewString()

	var deadline time.Time
	if l.wait > 0 {
		deadline = time.Now().Add(l.wait)
	}

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			l.logger.Debug("lock acquired", "key", key)
			return &Lease{locker: l, key: key, token: token}, nil
		}

		if deadline.IsZero() || time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, resource)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(DefaultRetryInterval):
		}
	}
}

// AcquireDir захватывает блокировку каталога по абсолютному пути.
func (l *Locker) AcquireDir(ctx context.Context, dir string) (*Lease, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	return l.Acquire(ctx, "outdir:"+abs)
}

// Extend продлевает lease на TTL.
func (l *Lease) Extend(ctx context.Context) error {
	n, err := extendScript.Run(ctx, l.locker.client, []string{l.key}, l.token, l.locker.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

// KeepAlive продлевает lease каждые TTL/3 до Release или отмены ctx.
// Если продлить не удалось, вызывается onLost (может быть nil) и продление
// прекращается: держатель больше не владеет ресурсом эксклюзивно.
func (l *Lease) KeepAlive(ctx context.Context, onLost func(error)) {
	l.stop = make(chan struct{})
	l.done = make(chan struct{})

	interval := l.locker.ttl / 3
	go func() {
		defer close(l.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-l.stop:
				return
			case <-ticker.C:
				err := l.Extend(ctx)
				if err == nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				l.locker.logger.Error("lock lost", "key", l.key, "error", err)
				if onLost != nil {
					onLost(fmt.Errorf("%w: %s: %w", ErrLost, l.key, err))
				}
				return
			}
		}
	}()
}

// Release снимает блокировку, если она ещё принадлежит этому lease.
func (l *Lease) Release(ctx context.Context) error {
	if l.stop != nil {
		l.stopOnce.Do(func() { close(l.stop) })
		<-l.done
	}

	n, err := releaseScript.Run(ctx, l.locker.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	l.locker.logger.Debug("lock released", "key", l.key)
	return nil
}

// NewClientFromEnv создаёт клиент Redis из REDIS_URL.
// Возвращает nil, если переменная не задана.
func NewClientFromEnv() (*redis.Client, error) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}
