package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"consignado-bot/handler"
	"consignado-bot/internal/auth"
	"consignado-bot/internal/config"
	"consignado-bot/internal/dedupe"
	"consignado-bot/internal/integrations/paramstore"
	"consignado-bot/internal/integrations/zapi"
	"consignado-bot/internal/metrics"
	"consignado-bot/internal/repository"
	"consignado-bot/internal/usecase"
)

// app holds every wired component for one process.
type app struct {
	store   repository.Store
	webhook *handler.Handler
	metrics *metrics.Metrics
	tokens  *auth.Tokens
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "err", err)
		}
	}
}

func (a *app) router() (http.Handler, error) {
	return handler.NewRouter(handler.RouterConfig{
		Webhook: a.webhook,
		Store:   a.store,
		Health:  a.store,
		Tokens:  a.tokens,
		Metrics: a.metrics.Handler(),
	})
}

func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &app{}

	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		var err error
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
	}

	var params *paramstore.Client
	if cfg.ParamPrefix != "" {
		var err error
		params, err = paramstore.New(awsssm.NewFromConfig(awsCfg), cfg.ParamPrefix)
		if err != nil {
			return nil, fmt.Errorf("create SSM client: %w", err)
		}
		if err := cfg.ResolveSecrets(ctx, params); err != nil {
			return nil, err
		}
	}

	store, closeStore, err := openStore(ctx, cfg, awsCfg)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	deduper, err := newDeduper(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if c, ok := deduper.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	gateway, err := newGateway(cfg, params)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create Z-API client: %w", err)
	}

	a.metrics = metrics.New()
	svc, err := usecase.NewService(store, gateway,
		usecase.WithDeduper(deduper),
		usecase.WithRecorder(a.metrics),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create conversation service: %w", err)
	}

	a.webhook, err = handler.NewHandler(svc, handler.WithLatencyObserver(a.metrics.ObserveWebhook))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create handler: %w", err)
	}

	a.tokens, err = auth.NewTokens(cfg.SessionSecret)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config, awsCfg aws.Config) (repository.Store, func() error, error) {
	if err := cfg.ValidateStore(); err != nil {
		return nil, nil, err
	}
	noop := func() error { return nil }
	switch cfg.StoreBackend {
	case config.BackendSQL:
		s, err := repository.OpenSQL(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		slog.Info("using sql store", "driver", s.Driver())
		return s, s.Close, nil
	case config.BackendDynamoDB:
		s, err := repository.NewDynamo(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("using dynamodb store", "table", cfg.StateTable)
		return s, noop, nil
	default:
		slog.Warn("using in-memory store; conversations are lost on restart")
		return repository.NewMemoryStore(), noop, nil
	}
}

// dedupeCloser closes the Redis client backing a deduper.
type dedupeCloser struct {
	*dedupe.Redis
	close func() error
}

func (d dedupeCloser) Close() error { return d.close() }

func newDeduper(ctx context.Context, cfg config.Config) (usecase.Deduper, error) {
	if cfg.RedisURL == "" {
		return dedupe.NewMemory(cfg.DedupeTTL), nil
	}
	client, err := dedupe.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	d, err := dedupe.NewRedis(client, cfg.DedupeTTL)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return dedupeCloser{Redis: d, close: client.Close}, nil
}

func newGateway(cfg config.Config, params *paramstore.Client) (*zapi.Client, error) {
	opts := []zapi.Option{
		zapi.WithBaseURL(cfg.ZAPI.BaseURL),
		zapi.WithHTTPClient(&http.Client{Timeout: cfg.ZAPI.Timeout}),
		zapi.WithClientToken(cfg.ZAPI.ClientToken),
	}
	switch {
	case cfg.ZAPI.Token != "":
		opts = append(opts, zapi.WithToken(cfg.ZAPI.Token))
	case params != nil:
		opts = append(opts, zapi.WithTokenParameter(params, params.Path(config.ParamZAPIToken)))
	default:
		return nil, errors.New("no gateway token configured")
	}
	return zapi.NewClient(cfg.ZAPI.InstanceID, opts...)
}
