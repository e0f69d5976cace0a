package di

import (
	"github.com/quickcourt/court-booking/internal/gateway"
	"github.com/quickcourt/court-booking/internal/handler"
	"github.com/quickcourt/court-booking/internal/pricing"
	"github.com/quickcourt/court-booking/internal/repository"
	"github.com/quickcourt/court-booking/internal/service"
	"github.com/quickcourt/court-booking/internal/worker"
	"github.com/quickcourt/court-booking/pkg/database"
	"github.com/quickcourt/court-booking/pkg/redis"
)

// Container holds all dependencies for the booking service
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client

	// Repositories
	BookingRepo repository.BookingRepository
	HoldRepo    repository.HoldRepository
	AttemptRepo repository.PaymentAttemptRepository

	// External clients
	Gateway gateway.PaymentGateway
	Pricing pricing.Provider

	// Publishers
	EventPublisher service.EventPublisher

	// Services
	BookingService    service.BookingService
	SettlementService service.SettlementService

	// Workers
	SweepWorker *worker.SweepWorker

	// Handlers
	HealthHandler  *handler.HealthHandler
	BookingHandler *handler.BookingHandler
	PaymentHandler *handler.PaymentHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	DB             *database.PostgresDB
	Redis          *redis.Client
	BookingRepo    repository.BookingRepository
	HoldRepo       repository.HoldRepository
	AttemptRepo    repository.PaymentAttemptRepository
	Gateway        gateway.PaymentGateway
	Pricing        pricing.Provider
	EventPublisher service.EventPublisher

	BookingConfig    *service.BookingServiceConfig
	SettlementConfig *service.SettlementServiceConfig
	SweepConfig      *worker.SweepWorkerConfig
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:             cfg.DB,
		Redis:          cfg.Redis,
		BookingRepo:    cfg.BookingRepo,
		HoldRepo:       cfg.HoldRepo,
		AttemptRepo:    cfg.AttemptRepo,
		Gateway:        cfg.Gateway,
		Pricing:        cfg.Pricing,
		EventPublisher: cfg.EventPublisher,
	}

	// Initialize services
	c.BookingService = service.NewBookingService(
		c.BookingRepo,
		c.HoldRepo,
		c.Pricing,
		c.EventPublisher,
		cfg.BookingConfig,
	)
	c.SettlementService = service.NewSettlementService(
		c.BookingRepo,
		c.AttemptRepo,
		c.HoldRepo,
		c.Gateway,
		c.EventPublisher,
		cfg.SettlementConfig,
	)

	// Initialize workers
	c.SweepWorker = worker.NewSweepWorker(
		c.BookingRepo,
		c.HoldRepo,
		c.EventPublisher,
		cfg.SweepConfig,
	)

	// Initialize handlers
	c.HealthHandler = handler.NewHealthHandler(c.DB, c.Redis)
	c.BookingHandler = handler.NewBookingHandler(c.BookingService, c.SettlementService)
	c.PaymentHandler = handler.NewPaymentHandler(c.SettlementService)

	return c
}
