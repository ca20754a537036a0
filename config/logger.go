package config

import (
	"go.elastic.co/ecszap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. STAGE=local gives a development
// logger; LOG_FORMAT=ecs emits Elastic Common Schema documents.
func NewLogger(appConfig *Config) (*zap.Logger, error) {

	config := zap.NewProductionConfig()
	if appConfig.Stage == "local" {
		config = zap.NewDevelopmentConfig()
	}

	if level, err := zapcore.ParseLevel(appConfig.Log.Level); err == nil {
		config.Level = zap.NewAtomicLevelAt(level)
	}

	var opts []zap.Option
	if appConfig.Log.Format == "ecs" {
		config.EncoderConfig = ecszap.ECSCompatibleEncoderConfig(config.EncoderConfig)
		opts = append(opts, ecszap.WrapCoreOption())
	}

	logger, err := config.Build(opts...)
	if err != nil {
		return nil, err
	}

	return logger.With(zap.String("service", "storecredit")), nil
}
