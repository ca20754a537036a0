//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"goflare.io/storecredit/commerce"
	"goflare.io/storecredit/config"
	"goflare.io/storecredit/correlation"
	"goflare.io/storecredit/deadletter"
	"goflare.io/storecredit/driver"
	"goflare.io/storecredit/event"
	"goflare.io/storecredit/handlers"
	"goflare.io/storecredit/issuer"
	"goflare.io/storecredit/ledger"
	"goflare.io/storecredit/redemption"
	"goflare.io/storecredit/server"
	"goflare.io/storecredit/webhook"
)

func InitializeServer() (*server.Server, func(), error) {

	wire.Build(
		config.ProvideApplicationConfig,
		config.NewLogger,
		config.ProvidePostgresConn,
		config.ProvideRedis,
		config.ProvideEmber,
		config.ProvideIgnite,
		config.ProvideNATS,
		driver.NewTransactionManager,
		ledger.NewClient,
		commerce.NewClient,
		webhook.NewStripeIngress,
		correlation.ProvideCodec,
		correlation.NewRepository,
		correlation.NewService,
		providePublisher,
		deadletter.NewRepository,
		deadletter.NewService,
		event.NewRepository,
		event.NewService,
		redemption.NewRepository,
		redemption.NewRedisLocker,
		redemption.NewService,
		issuer.NewService,
		provideCredit,
		handlers.NewCreditHandler,
		handlers.NewDiscountHandler,
		handlers.NewWebhookHandler,
		handlers.NewAuditHandler,
		handlers.NewHealthHandler,
		server.NewServer,
	)

	return &server.Server{}, nil, nil
}
