package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Spectra/internal/lock"
	"github.com/shaiso/Spectra/internal/mq"
	"github.com/shaiso/Spectra/internal/repo"
)

// ErrNoDatabase — команда требует DB_URL.
var ErrNoDatabase = errors.New("DB_URL is not set; run history is disabled")

// Infra — опциональная инфраструктура: история, события, блокировка.
// Каждая часть включается своей переменной окружения.
type Infra struct {
	Pool         *pgxpool.Pool
	RunRepo      *repo.RunRepo
	InstanceRepo *repo.InstanceRepo
	ScheduleRepo *repo.ScheduleRepo

	Conn      *mq.Connection
	Publisher *mq.Publisher

	Redis  *redis.Client
	Locker *lock.Locker
}

// OpenInfra подключает доступную инфраструктуру.
// Недоступный RabbitMQ не фатален: run выполняется без событий.
func OpenInfra(ctx context.Context, logger *slog.Logger) (*Infra, error) {
	infra := &Infra{}

	if dsn := repo.DSNFromEnv(); dsn != "" {
		pool, err := repo.NewPool(ctx, dsn)
		if err != nil {
			return nil, err
		}
		infra.Pool = pool
		infra.RunRepo = repo.NewRunRepo(pool)
		infra.InstanceRepo = repo.NewInstanceRepo(pool)
		infra.ScheduleRepo = repo.NewScheduleRepo(pool)
		logger.Info("run history enabled")
	}

	if url := mq.URLFromEnv(); url != "" {
		conn, err := mq.NewConnection(url, logger)
		if err != nil {
			logger.Warn("RabbitMQ not available, running without events", "error", err)
		} else {
			if err := mq.SetupTopology(ctx, conn); err != nil {
				logger.Warn("failed to setup topology", "error", err)
			}
			infra.Conn = conn
			infra.Publisher = mq.NewPublisher(conn, logger)
			logger.Info("RabbitMQ connected")
		}
	}

	client, err := lock.NewClientFromEnv()
	if err != nil {
		infra.Close()
		return nil, err
	}
	if client != nil {
		infra.Redis = client
		infra.Locker = lock.New(lock.Config{Client: client, Logger: logger})
		logger.Info("outdir lock enabled")
	}

	return infra, nil
}

// RequireHistory возвращает ErrNoDatabase без DB_URL.
func (i *Infra) RequireHistory() error {
	if i.Pool == nil {
		return ErrNoDatabase
	}
	return nil
}

// Close закрывает все подключения.
func (i *Infra) Close() {
	if i.Conn != nil {
		i.Conn.Close()
	}
	if i.Redis != nil {
		i.Redis.Close()
	}
	if i.Pool != nil {
		i.Pool.Close()
	}
}
