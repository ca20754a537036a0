package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"goflare.io/storecredit/config"
	"goflare.io/storecredit/handlers"
)

// maxBodySize bounds webhook and API payloads.
const maxBodySize = "2M"

type Server struct {
	echo     *echo.Echo
	config   *config.Config
	logger   *zap.Logger
	Credit   handlers.CreditHandler
	Discount handlers.DiscountHandler
	Webhook  handlers.WebhookHandler
	Audit    handlers.AuditHandler
	Health   handlers.HealthHandler
}

func NewServer(
	appConfig *config.Config,
	logger *zap.Logger,
	Credit handlers.CreditHandler,
	Discount handlers.DiscountHandler,
	Webhook handlers.WebhookHandler,
	Audit handlers.AuditHandler,
	Health handlers.HealthHandler,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	return &Server{
		echo:     e,
		config:   appConfig,
		logger:   logger.Named("http"),
		Credit:   Credit,
		Discount: Discount,
		Webhook:  Webhook,
		Audit:    Audit,
		Health:   Health,
	}
}

// Address is the configured listen address.
func (s *Server) Address() string {
	return s.config.Port
}

// Start registers middlewares and routes and listens on address.
func (s *Server) Start(address string) error {
	s.registerMiddlewares()
	s.registerRoutes()
	return s.echo.Start(address)
}

// Run serves until SIGINT or SIGTERM, then shuts down within 10 seconds.
func (s *Server) Run(address string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info("server started", zap.String("address", address))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		s.logger.Info("shutting down server", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}

func (s *Server) registerMiddlewares() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(middleware.Secure())
	s.echo.Use(middleware.BodyLimit(maxBodySize))
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{s.config.CORSOrigin},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: s.config.CORSOrigin != "*",
	}))
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				s.logger.Error("request", append(fields, zap.Error(v.Error))...)
				return nil
			}
			s.logger.Info("request", fields...)
			return nil
		},
	}))
}

func (s *Server) registerRoutes() {

	s.echo.GET("/health", s.Health.Live)
	s.echo.GET("/ready", s.Health.Ready)

	s.echo.POST("/credit/verify", s.Credit.VerifyCredit)
	s.echo.GET("/credit/status", s.Credit.Status)

	s.echo.POST("/discounts", s.Discount.CreateDiscount)
	s.echo.DELETE("/discounts/:id", s.Discount.DeleteDiscount)

	s.echo.POST("/webhooks/orders", s.Webhook.HandleShopifyWebhook)
	s.echo.POST("/webhooks/stripe", s.Webhook.HandleStripeWebhook)

	s.echo.GET("/correlations/:code", s.Audit.GetCorrelation)
	s.echo.GET("/customers/:customerId/correlations", s.Audit.ListCorrelations)
	s.echo.GET("/redemptions/:orderRef", s.Audit.GetRedemption)
	s.echo.GET("/dead-letters", s.Audit.ListDeadLetters)
	s.echo.POST("/dead-letters/:id/resolve", s.Audit.ResolveDeadLetter)
}
