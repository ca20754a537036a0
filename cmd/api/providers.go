package main

import (
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"goflare.io/storecredit"
	"goflare.io/storecredit/config"
	"goflare.io/storecredit/correlation"
	"goflare.io/storecredit/deadletter"
	"goflare.io/storecredit/event"
	"goflare.io/storecredit/issuer"
	"goflare.io/storecredit/ledger"
	"goflare.io/storecredit/redemption"
	"goflare.io/storecredit/webhook"
)

func provideCredit(appConfig *config.Config,
	natsConn *nats.Conn,
	ledgerClient ledger.Client,
	stripeIngress *webhook.StripeIngress,
	issuerService issuer.Service,
	correlationService correlation.Service,
	redemptionService redemption.Service,
	eventService event.Service,
	deadLetterService deadletter.Service,
	logger *zap.Logger) (storecredit.Credit, func(), error) {
	credit, err := storecredit.NewStoreCredit(appConfig, natsConn, ledgerClient, stripeIngress,
		issuerService, correlationService, redemptionService, eventService, deadLetterService, logger)
	if err != nil {
		return nil, nil, err
	}
	return credit, credit.Close, nil
}

func providePublisher(appConfig *config.Config, logger *zap.Logger) (deadletter.Publisher, func()) {
	publisher := deadletter.NewPublisher(appConfig, logger)
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("failed to close dead letter publisher", zap.Error(err))
		}
	}
}
