package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/cloud-storage-provider/internal/core/ports"
	customMiddleware "github.com/avatarctic/cloud-storage-provider/internal/infrastructure/httpserver/middleware"
)

type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TLSCertFile    string
	TLSKeyFile     string
	AllowedOrigins []string
	Environment    string
	// HealthTimeout bounds one /health request; zero means no bound.
	HealthTimeout time.Duration
}

type ServerDeps struct {
	HealthService ports.HealthService
	Storage       ports.StorageProviders
	// RateLimiter throttles the storage API; nil disables limiting.
	RateLimiter ports.RateLimiter
}

type Server struct {
	echo       *echo.Echo
	config     *ServerConfig
	logger     *logrus.Logger
	healthSvc  ports.HealthService
	storage    ports.StorageProviders
	middleware *customMiddleware.MiddlewareCollection
}

func NewServer(serverConfig *ServerConfig, logger *logrus.Logger, deps ServerDeps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = NewRequestValidator()

	server := &Server{
		echo:      e,
		config:    serverConfig,
		logger:    logger,
		healthSvc: deps.HealthService,
		storage:   deps.Storage,
		middleware: customMiddleware.NewMiddlewareCollection(
			logger,
			GetRequestsTotal(),
			GetRequestDuration(),
			deps.RateLimiter,
			GetRateLimitedTotal(),
		),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}
