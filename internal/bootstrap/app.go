package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"jupyter-proxy-apps/internal/cache"
	"jupyter-proxy-apps/internal/config"
	"jupyter-proxy-apps/internal/listener"
	"jupyter-proxy-apps/internal/model"
	"jupyter-proxy-apps/internal/platform/dblog"
	mysqlClient "jupyter-proxy-apps/internal/platform/mysql"
	rabbitmqClient "jupyter-proxy-apps/internal/platform/rabbitmq"
	redisClient "jupyter-proxy-apps/internal/platform/redis"
	sqliteClient "jupyter-proxy-apps/internal/platform/sqlite"
	"jupyter-proxy-apps/internal/repository"
	"jupyter-proxy-apps/internal/worker"
)

const (
	ServiceBookmarks = "bookmarks"
	ServiceBoard     = "board"
	ServiceNotes     = "notes"
	ServiceTypewords = "typewords"
)

// App holds what a running service shares between its handlers. DB, Redis
// and MQConn are only set for the board, and Redis and MQConn only when
// configured.
type App struct {
	Config  *config.Config
	Log     *logrus.Entry
	Service string
	Address listener.Address

	DB            *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	CommentWorker *worker.CommentPersistWorker

	StartedAt time.Time
}

func New(ctx context.Context, cfg *config.Config, log *logrus.Entry, service string, addr listener.Address) (*App, error) {
	a := &App{
		Config:    cfg,
		Log:       log,
		Service:   service,
		Address:   addr,
		StartedAt: time.Now(),
	}

	switch service {
	case ServiceBookmarks, ServiceNotes, ServiceTypewords:
	case ServiceBoard:
		if err := a.openBoard(ctx); err != nil {
			_ = a.Close()
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown service %q", service)
	}
	return a, nil
}

func (a *App) openBoard(ctx context.Context) error {
	cfg := a.Config
	gormLogger := dblog.New(a.Log)

	var err error
	switch cfg.Board.Driver {
	case "mysql":
		a.DB, err = mysqlClient.New(ctx, cfg.MySQLDSN(), gormLogger)
	default:
		a.DB, err = sqliteClient.New(ctx, cfg.Board.SQLitePath, gormLogger)
	}
	if err != nil {
		return err
	}
	if err := a.DB.AutoMigrate(&model.Comment{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	if cfg.Redis.Addr != "" {
		a.Redis, err = redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
	}

	if cfg.Board.PersistMode == "async" {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}

		var invalidator worker.Invalidator
		if a.Redis != nil {
			invalidator = a.CommentCache()
		}
		a.CommentWorker = worker.NewCommentPersistWorker(
			a.MQConn,
			repository.NewCommentRepository(a.DB),
			invalidator,
			cfg.RabbitMQ.CommentPersistQueue,
			a.Log,
		)
		if err := a.CommentWorker.Start(ctx); err != nil {
			return fmt.Errorf("start comment worker failed: %w", err)
		}
	}

	a.Log.WithFields(logrus.Fields{
		"driver":       cfg.Board.Driver,
		"persist_mode": cfg.Board.PersistMode,
		"cache":        a.Redis != nil,
	}).Info("board storage ready")
	return nil
}

// CommentCache is nil when redis is not configured.
func (a *App) CommentCache() *cache.CommentCache {
	if a.Redis == nil {
		return nil
	}
	return cache.NewCommentCache(a.Redis, time.Duration(a.Config.Redis.CommentsTTLSeconds)*time.Second)
}

func (a *App) Close() error {
	var closeErr error
	if a.CommentWorker != nil {
		a.CommentWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
