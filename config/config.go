package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"goflare.io/ember"
	emberConfig "goflare.io/ember/config"
	"goflare.io/ignite"
	"goflare.io/storecredit/driver"
)

const (
	ServerStartPort = ":8080"

	ProviderShopify = "shopify"
	ProviderStripe  = "stripe"
)

type Config struct {
	Port        string            `mapstructure:"port"`
	CORSOrigin  string            `mapstructure:"cors_origin"`
	Stage       string            `mapstructure:"stage"`
	Log         LogConfig         `mapstructure:"log"`
	Commerce    CommerceConfig    `mapstructure:"commerce"`
	Shopify     ShopifyConfig     `mapstructure:"shopify"`
	Stripe      StripeConfig      `mapstructure:"stripe"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	Redis       RedisConfig       `mapstructure:"redis"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Credit      CreditConfig      `mapstructure:"credit"`
	Correlation CorrelationConfig `mapstructure:"correlation"`
	Webhook     WebhookConfig     `mapstructure:"webhook"`
	Worker      WorkerConfig      `mapstructure:"worker"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CommerceConfig struct {
	Provider string `mapstructure:"provider"`
}

type ShopifyConfig struct {
	ShopURL       string `mapstructure:"shop_url"`
	AccessToken   string `mapstructure:"access_token"`
	APIVersion    string `mapstructure:"api_version"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	Currency      string `mapstructure:"currency"`
}

type LedgerConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	CheckPath     string        `mapstructure:"check_path"`
	RedeemPath    string        `mapstructure:"redeem_path"`
	HealthPath    string        `mapstructure:"health_path"`
	Timeout       time.Duration `mapstructure:"timeout"`
	HealthTimeout time.Duration `mapstructure:"health_timeout"`
}

type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type KafkaConfig struct {
	Brokers         []string `mapstructure:"brokers"`
	DeadLetterTopic string   `mapstructure:"dead_letter_topic"`
}

type CreditConfig struct {
	CodePrefix  string        `mapstructure:"code_prefix"`
	DiscountTTL time.Duration `mapstructure:"discount_ttl"`
}

type CorrelationConfig struct {
	MetafieldMirror bool `mapstructure:"metafield_mirror"`
}

// WebhookConfig.AllowTestTopic routes orders/create to redemption. Test stores only.
type WebhookConfig struct {
	AllowTestTopic bool `mapstructure:"allow_test_topic"`
}

type WorkerConfig struct {
	MaxWorkers int `mapstructure:"max_workers"`
	QueueSize  int `mapstructure:"queue_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", ServerStartPort)
	v.SetDefault("cors_origin", "*")
	v.SetDefault("stage", "production")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("commerce.provider", ProviderShopify)
	v.SetDefault("shopify.shop_url", "")
	v.SetDefault("shopify.access_token", "")
	v.SetDefault("shopify.api_version", "2024-01")
	v.SetDefault("shopify.webhook_secret", "")
	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.webhook_secret", "")
	v.SetDefault("stripe.currency", "usd")
	v.SetDefault("ledger.base_url", "")
	v.SetDefault("ledger.check_path", "/api/creditCheck/")
	v.SetDefault("ledger.redeem_path", "/api/creditRedemption/")
	v.SetDefault("ledger.health_path", "/")
	v.SetDefault("ledger.timeout", 10*time.Second)
	v.SetDefault("ledger.health_timeout", 5*time.Second)
	v.SetDefault("postgres.url", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.dead_letter_topic", "credit.dead_letters")
	v.SetDefault("credit.code_prefix", "CREDIT_")
	v.SetDefault("credit.discount_ttl", 24*time.Hour)
	v.SetDefault("correlation.metafield_mirror", false)
	v.SetDefault("webhook.allow_test_topic", false)
	v.SetDefault("worker.max_workers", 10)
	v.SetDefault("worker.queue_size", 100)
}

// ProvideApplicationConfig loads .env, then ./config.yaml if present, then the
// environment. SHOPIFY_ACCESS_TOKEN overrides shopify.access_token and so on.
func ProvideApplicationConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile("./config.yaml")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if !strings.HasPrefix(config.Port, ":") {
		config.Port = ":" + config.Port
	}

	return &config, nil
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	var missing []string
	if c.Ledger.BaseURL == "" {
		missing = append(missing, "LEDGER_BASE_URL")
	}
	if c.Postgres.URL == "" {
		missing = append(missing, "POSTGRES_URL")
	}
	switch c.Commerce.Provider {
	case ProviderShopify:
		if c.Shopify.ShopURL == "" {
			missing = append(missing, "SHOPIFY_SHOP_URL")
		}
		if c.Shopify.AccessToken == "" {
			missing = append(missing, "SHOPIFY_ACCESS_TOKEN")
		}
	case ProviderStripe:
		if c.Stripe.SecretKey == "" {
			missing = append(missing, "STRIPE_SECRET_KEY")
		}
	default:
		return fmt.Errorf("unknown commerce provider %q", c.Commerce.Provider)
	}
	if c.Credit.CodePrefix == "" {
		missing = append(missing, "CREDIT_CODE_PREFIX")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func ProvidePostgresConn(appConfig *Config) (driver.PostgresPool, func(), error) {

	conn, err := driver.ConnectSQL(appConfig.Postgres.URL)
	if err != nil {
		return nil, nil, err
	}

	if err = driver.Migrate(context.Background(), conn.Pool); err != nil {
		conn.Pool.Close()
		return nil, nil, err
	}

	return conn.Pool, conn.Pool.Close, nil
}

func ProvideRedis(appConfig *Config) (*redis.Client, func(), error) {
	rdb, err := driver.ConnectRedis(appConfig.Redis.Addr, appConfig.Redis.Password, 0)
	if err != nil {
		return nil, nil, err
	}

	return rdb, func() { _ = rdb.Close() }, nil
}

func ProvideEmber(conn *redis.Client) (*ember.MultiCache, error) {

	config := emberConfig.NewConfig()
	cache, err := ember.NewMultiCache(context.Background(), &config, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	return cache, nil
}

func ProvideIgnite() ignite.Manager {
	return ignite.NewManager()
}

// ProvideNATS returns a nil connection when nats.url is empty; events are
// then dispatched in process.
func ProvideNATS(appConfig *Config, logger *zap.Logger) (*nats.Conn, error) {
	if appConfig.NATS.URL == "" {
		return nil, nil
	}

	nc, err := nats.Connect(appConfig.NATS.URL,
		nats.Name("storecredit"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", conn.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return nc, nil
}
