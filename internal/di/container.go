package di

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/prachya-t/ticket-reserve/internal/handler"
	"github.com/prachya-t/ticket-reserve/internal/lock"
	"github.com/prachya-t/ticket-reserve/internal/metrics"
	"github.com/prachya-t/ticket-reserve/internal/repository"
	"github.com/prachya-t/ticket-reserve/internal/service"
	"github.com/prachya-t/ticket-reserve/internal/worker"
	"github.com/prachya-t/ticket-reserve/pkg/config"
	"github.com/prachya-t/ticket-reserve/pkg/database"
	"github.com/prachya-t/ticket-reserve/pkg/kafka"
	"github.com/prachya-t/ticket-reserve/pkg/logger"
	pkgredis "github.com/prachya-t/ticket-reserve/pkg/redis"
	"github.com/prachya-t/ticket-reserve/pkg/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Container wires infrastructure, repositories, services and handlers
type Container struct {
	Config    *config.Config
	DB        *database.PostgresDB
	Redis     *pkgredis.Client
	Producer  *kafka.Producer
	Telemetry *telemetry.Telemetry
	Metrics   *metrics.Metrics

	EventRepo       repository.EventRepository
	ReservationRepo repository.ReservationRepository
	SeatRepo        repository.SeatRepository
	WaitlistRepo    repository.WaitlistRepository
	JobRepo         repository.JobRepository
	JobQueue        repository.JobQueue

	SeatLock  *lock.SeatLock
	Publisher service.EventPublisher

	CapacityService *service.CapacityService
	SeatJobService  *service.SeatJobService
	WaitlistService *service.WaitlistService

	SeatWorker *worker.SeatWorker
	Handlers   *handler.Handlers
}

// Options selects which parts of the container to build
type Options struct {
	// WithWorker builds the seat worker pool
	WithWorker bool
	// WithHandlers builds the HTTP handlers
	WithHandlers bool
	// WithKafka connects the lifecycle event producer; when false events are
	// discarded
	WithKafka bool
}

// New builds the container from configuration. Call Close to release
// connections.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Container, error) {
	c := &Container{Config: cfg}

	tel, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init telemetry: %w", err)
	}
	c.Telemetry = tel

	m, err := metrics.New()
	if err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	c.Metrics = m

	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		EnableTracing:   cfg.OTel.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	c.DB = db

	redisClient, err := pkgredis.NewClient(ctx, &pkgredis.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	c.Redis = redisClient

	c.Publisher = service.NoOpEventPublisher{}
	if opts.WithKafka {
		producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:  cfg.Kafka.Brokers,
			ClientID: cfg.Kafka.ClientID,
		})
		if err != nil {
			// Lifecycle events are best effort; the core keeps working
			logger.Get().Warn("kafka unavailable, lifecycle events disabled", zap.Error(err))
		} else {
			c.Producer = producer
			c.Publisher = service.NewKafkaEventPublisher(producer, cfg.Kafka.Topic)
		}
	}

	pool := db.Pool()
	c.EventRepo = repository.NewPostgresEventRepository(pool)
	c.ReservationRepo = repository.NewPostgresReservationRepository(pool)
	c.SeatRepo = repository.NewPostgresSeatRepository(pool)
	c.WaitlistRepo = repository.NewPostgresWaitlistRepository(pool)
	c.JobRepo = repository.NewPostgresJobRepository(pool)
	c.JobQueue = repository.NewRedisJobQueue(redisClient)

	c.SeatLock = lock.New(redisClient, cfg.Reservation.LockTTL)

	c.CapacityService = service.NewCapacityService(
		c.EventRepo, c.ReservationRepo, c.Publisher, m, cfg.Reservation.CASMaxRetries)
	c.SeatJobService = service.NewSeatJobService(c.JobRepo, c.JobQueue, m)
	c.WaitlistService = service.NewWaitlistService(
		c.EventRepo, c.WaitlistRepo, c.ReservationRepo, c.Publisher, m,
		cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.ClaimTokenTTL,
		cfg.Reservation.CASMaxRetries)

	if opts.WithWorker {
		c.SeatWorker = worker.NewSeatWorker(
			&worker.Config{
				WorkerCount:   cfg.Reservation.WorkerCount,
				MaxAttempts:   cfg.Reservation.JobMaxAttempts,
				RetryBackoff:  cfg.Reservation.JobRetryBackoff,
				CASMaxRetries: cfg.Reservation.CASMaxRetries,
			},
			c.JobRepo, c.JobQueue, c.EventRepo, c.SeatRepo, c.ReservationRepo,
			c.SeatLock, c.Publisher, m,
		)
	}

	if opts.WithHandlers {
		c.Handlers = &handler.Handlers{
			Reservation: handler.NewReservationHandler(c.CapacityService),
			SeatJob:     handler.NewSeatJobHandler(c.SeatJobService),
			Waitlist:    handler.NewWaitlistHandler(c.WaitlistService, cfg.Reservation.DefaultSlotLimit),
			Health:      handler.NewHealthHandler(db, redisClient),
		}
	}

	return c, nil
}

// Close releases all connections in reverse dependency order
func (c *Container) Close() {
	if c.Producer != nil {
		if err := c.Producer.Close(); err != nil {
			logger.Get().Warn("failed to close kafka producer", zap.Error(err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logger.Get().Warn("failed to close redis client", zap.Error(err))
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
	if c.Telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := c.Telemetry.Shutdown(ctx); err != nil {
			logger.Get().Warn("failed to shutdown telemetry", zap.Error(err))
		}
	}
}
