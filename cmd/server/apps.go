package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	avataxapp "github.com/trieb-work/saleor-apps/internal/application/avatax"
	klaviyoapp "github.com/trieb-work/saleor-apps/internal/application/klaviyo"
	feedapp "github.com/trieb-work/saleor-apps/internal/application/productsfeed"
	searchapp "github.com/trieb-work/saleor-apps/internal/application/search"
	smtpapp "github.com/trieb-work/saleor-apps/internal/application/smtp"
	stripeapp "github.com/trieb-work/saleor-apps/internal/application/stripe"
	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/algolia"
	avataxapi "github.com/trieb-work/saleor-apps/internal/infrastructure/avatax"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/cache"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/config"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/crypto"
	klaviyoapi "github.com/trieb-work/saleor-apps/internal/infrastructure/klaviyo"
	saleorapi "github.com/trieb-work/saleor-apps/internal/infrastructure/saleor"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/settings"
	smtpapi "github.com/trieb-work/saleor-apps/internal/infrastructure/smtp"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/storage"
	stripeapi "github.com/trieb-work/saleor-apps/internal/infrastructure/stripe"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/handler"
	"github.com/trieb-work/saleor-apps/internal/interfaces/http/router"
)

// Redis keys of processed Stripe events
const stripeIdempotencyPrefix = "stripe-webhook:"

// appDeps are the process wide dependencies shared by the app factories
type appDeps struct {
	store      apl.APL
	meter      metric.Meter
	httpClient *http.Client
	logger     *zap.Logger
}

// appRoutes builds the service and handlers of the configured app kind. The
// returned closers release what the app holds and run after the server stops.
func appRoutes(ctx context.Context, cfg *config.Config, deps appDeps, mw router.Middlewares) ([]router.RouteRegistrar, []io.Closer, error) {
	encryptor, err := crypto.NewAESGCMEncryptor(cfg.App.SecretKey)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize metadata encryption: %w", err)
	}
	saleorOpts := []saleorapi.Option{saleorapi.WithHTTPClient(deps.httpClient)}
	metadata := settings.NewMetadataFactory(encryptor, saleorOpts...)
	log := deps.logger

	switch cfg.App.Kind {
	case config.AppSMTP:
		recorder, err := smtpapi.NewRecorder(deps.meter)
		if err != nil {
			return nil, nil, err
		}
		service := smtpapp.NewService(smtpapp.ServiceConfig{
			Configs:  settings.NewBlobStore(metadata, smtpapp.ConfigKey),
			Senders:  smtpapp.NewSenderFactory(recorder),
			Compiler: smtpapi.NewCompiler(),
			Logger:   log,
		})
		return router.SMTPRoutes(handler.NewSMTPHandler(service, log), mw), nil, nil

	case config.AppAvatax:
		recorder, err := avataxapi.NewRecorder(deps.meter)
		if err != nil {
			return nil, nil, err
		}
		service := avataxapp.NewService(avataxapp.ServiceConfig{
			Configs: settings.NewBlobStore(metadata, avataxapp.ConfigKey),
			Clients: avataxapp.NewClientFactory(recorder, cfg.App.Version),
			Clock:   clockwork.NewRealClock(),
			Logger:  log,
		})
		return router.AvataxRoutes(handler.NewAvataxHandler(service, log), mw), nil, nil

	case config.AppKlaviyo:
		recorder, err := klaviyoapi.NewRecorder(deps.meter)
		if err != nil {
			return nil, nil, err
		}
		service := klaviyoapp.NewService(klaviyoapp.ServiceConfig{
			Configs: settings.NewBlobStore(metadata, klaviyoapp.ConfigKey),
			Senders: klaviyoapp.NewSenderFactory(recorder),
			Clock:   clockwork.NewRealClock(),
			Logger:  log,
		})
		return router.KlaviyoRoutes(handler.NewKlaviyoHandler(service, log), mw), nil, nil

	case config.AppSearch:
		recorder, err := algolia.NewRecorder(deps.meter)
		if err != nil {
			return nil, nil, err
		}
		service := searchapp.NewService(searchapp.ServiceConfig{
			Configs:  settings.NewBlobStore(metadata, searchapp.ConfigKey),
			Indexers: searchapp.NewIndexerFactory(recorder),
			Channels: searchapp.NewChannelListerFactory(saleorOpts...),
			Logger:   log,
		})
		return router.SearchRoutes(handler.NewSearchHandler(service, log), mw), nil, nil

	case config.AppStripe:
		recorder, err := stripeapi.NewRecorder(deps.meter)
		if err != nil {
			return nil, nil, err
		}
		idempotency, err := cache.NewIdempotencyStore(ctx, cfg.APL.RedisURL, stripeIdempotencyPrefix, log)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize webhook idempotency store: %w", err)
		}
		service := stripeapp.NewService(stripeapp.ServiceConfig{
			Configs:  settings.NewBlobStore(metadata, stripeapp.ConfigKey),
			Gateways: stripeapp.NewGatewayFactory(recorder),
			Reporters: func(authData *apl.AuthData) stripeapp.TransactionReporter {
				return saleorapi.NewClient(authData.SaleorAPIURL, authData.Token, saleorOpts...)
			},
			Idempotency:    idempotency,
			IdempotencyTTL: cfg.Stripe.WebhookIdempotencyTTL,
			AppBaseURL:     cfg.App.APIBaseURL,
			Logger:         log,
		})
		return router.StripeRoutes(handler.NewStripeHandler(service, log), mw), []io.Closer{idempotency}, nil

	case config.AppProductsFeed:
		recorder, err := storage.NewRecorder(deps.meter)
		if err != nil {
			return nil, nil, err
		}
		storages := feedapp.NewStorageFactory(feedapp.StorageSettings{
			Endpoint:          cfg.Feed.S3Endpoint,
			UsePathStyle:      cfg.Feed.S3UsePathStyle,
			PresignExpiration: cfg.Feed.PresignTTL,
		}, recorder, log)
		service := feedapp.NewService(feedapp.ServiceConfig{
			Configs:         settings.NewBlobStore(metadata, feedapp.ConfigKey),
			Storages:        storages,
			Variants:        feedapp.NewVariantSourceFactory(saleorOpts...),
			Clock:           clockwork.NewRealClock(),
			CacheTTL:        cfg.Feed.CacheTTL,
			PresignTTL:      cfg.Feed.PresignTTL,
			VariantsPerPage: cfg.Feed.VariantsPerPage,
			Logger:          log,
		})
		return router.ProductsFeedRoutes(handler.NewProductsFeedHandler(service, deps.store, log), mw), nil, nil
	}

	return nil, nil, fmt.Errorf("unknown app kind %q", cfg.App.Kind)
}
