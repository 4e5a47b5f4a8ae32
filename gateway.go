// Package gateway assembles the courier webhook event gateway: the HMAC
// signature gate, the intake service, the idempotent event processor, the
// queue runner and worker pool, and the dead-letter replay tooling.
package gateway

import (
	"context"
	"fmt"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-courier-gateway/adapters/gojob"
	"github.com/goliatone/go-courier-gateway/adapters/gologger"
	"github.com/goliatone/go-courier-gateway/command"
	"github.com/goliatone/go-courier-gateway/core"
	"github.com/goliatone/go-courier-gateway/dlq"
	"github.com/goliatone/go-courier-gateway/ingest"
	"github.com/goliatone/go-courier-gateway/processing"
	"github.com/goliatone/go-courier-gateway/signature"
	"github.com/goliatone/go-courier-gateway/worker"
)

// Commands exposes the go-command handlers for CLI and ops callers.
type Commands struct {
	IngestEvent       *command.IngestEventCommand
	ReplayDeadLetters *command.ReplayDeadLettersCommand
}

// Gateway is the assembled pipeline. Build one with New; the zero value is
// not usable.
type Gateway struct {
	config    core.Config
	provider  glog.LoggerProvider
	logger    glog.Logger
	stores    core.StoreProvider
	gate      *signature.Gate
	intake    *ingest.Service
	processor *processing.Processor
	runner    *gojob.Runner
	pool      *worker.Pool
	replayer  *dlq.Replayer
	commands  Commands
}

type Option func(*gatewayOptions)

type gatewayOptions struct {
	secret          string
	logger          glog.Logger
	provider        glog.LoggerProvider
	metrics         core.MetricsRecorder
	configProvider  core.ConfigProvider
	optionsResolver core.OptionsResolver
	runtimeConfig   core.Config
	stores          core.StoreProvider
	storeFactory    core.RepositoryStoreFactory
	storeSource     any
	enqueuer        core.JobEnqueuer
	dequeuer        core.JobDequeuer
	workerHook      core.JobWorkerHook
}

// WithSignatureSecret sets the shared secret the gate verifies against.
func WithSignatureSecret(secret string) Option {
	return func(o *gatewayOptions) {
		o.secret = secret
	}
}

func WithLogger(logger glog.Logger) Option {
	return func(o *gatewayOptions) {
		o.logger = logger
	}
}

func WithLoggerProvider(provider glog.LoggerProvider) Option {
	return func(o *gatewayOptions) {
		o.provider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(o *gatewayOptions) {
		o.metrics = recorder
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(o *gatewayOptions) {
		o.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(o *gatewayOptions) {
		o.optionsResolver = resolver
	}
}

// WithRuntimeConfig layers caller overrides on top of loaded configuration.
func WithRuntimeConfig(cfg core.Config) Option {
	return func(o *gatewayOptions) {
		o.runtimeConfig = cfg
	}
}

func WithStores(stores core.StoreProvider) Option {
	return func(o *gatewayOptions) {
		o.stores = stores
	}
}

// WithStoreFactory builds the stores from a persistence client or *bun.DB
// when explicit stores are not injected.
func WithStoreFactory(factory core.RepositoryStoreFactory, source any) Option {
	return func(o *gatewayOptions) {
		o.storeFactory = factory
		o.storeSource = source
	}
}

func WithEnqueuer(enqueuer core.JobEnqueuer) Option {
	return func(o *gatewayOptions) {
		o.enqueuer = enqueuer
	}
}

// WithDequeuer enables the worker pool. Without it the gateway only admits
// and replays; consumption is left to an external runner.
func WithDequeuer(dequeuer core.JobDequeuer) Option {
	return func(o *gatewayOptions) {
		o.dequeuer = dequeuer
	}
}

func WithWorkerHook(hook core.JobWorkerHook) Option {
	return func(o *gatewayOptions) {
		o.workerHook = hook
	}
}

// New wires the full pipeline from injected dependencies. The signature
// secret, the enqueuer, and a store source are required; everything else
// falls back to sensible defaults.
func New(ctx context.Context, opts ...Option) (*Gateway, error) {
	options := gatewayOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&options)
	}

	if options.secret == "" {
		return nil, fmt.Errorf("gateway: signature secret is required")
	}
	if options.enqueuer == nil {
		return nil, fmt.Errorf("gateway: job enqueuer is required")
	}

	cfg, err := resolveConfig(ctx, options)
	if err != nil {
		return nil, err
	}

	stores := options.stores
	if stores == nil {
		if options.storeFactory == nil {
			return nil, fmt.Errorf("gateway: stores or a store factory are required")
		}
		stores, err = options.storeFactory.BuildStores(options.storeSource)
		if err != nil {
			return nil, fmt.Errorf("gateway: build stores: %w", err)
		}
	}

	provider, logger := gologger.Resolve(cfg.ServiceName, options.provider, options.logger)
	metrics := options.metrics
	observerFor := func(component string) core.Observer {
		return core.NewObserver(gologger.Component(provider, component), metrics)
	}

	gate, err := signature.NewGate(options.secret,
		signature.WithTolerance(time.Duration(cfg.Signature.ToleranceSeconds)*time.Second),
	)
	if err != nil {
		return nil, err
	}

	intake, err := ingest.NewService(options.enqueuer, stores.IngestionAuditStore(),
		ingest.WithObserver(observerFor("ingest")),
		ingest.WithJobName(cfg.Queue.JobName),
	)
	if err != nil {
		return nil, err
	}

	publisher, err := gojob.NewDeadLetterJobPublisher(options.enqueuer, cfg.Queue.DeadLetterJobName)
	if err != nil {
		return nil, err
	}

	processor, err := processing.NewProcessor(
		stores.ProcessedEventStore(),
		stores.ShipmentStore(),
		stores.DeadLetterStore(),
		publisher,
		processing.NewRetryPolicy(cfg.Retry),
		processing.WithObserver(observerFor("processing")),
		processing.WithRetention(cfg.ProcessedRetention(), cfg.DeadLetterRetention()),
	)
	if err != nil {
		return nil, err
	}

	runner, err := gojob.NewRunner(processor,
		gojob.WithRunnerObserver(observerFor("runner")),
	)
	if err != nil {
		return nil, err
	}

	var pool *worker.Pool
	if options.dequeuer != nil {
		poolOpts := []worker.PoolOption{
			worker.WithConcurrency(cfg.Worker.Concurrency),
			worker.WithWorkerObserver(observerFor("worker")),
		}
		if options.workerHook != nil {
			poolOpts = append(poolOpts, worker.WithWorkerHook(options.workerHook))
		}
		pool, err = worker.NewPool(options.dequeuer, runner, poolOpts...)
		if err != nil {
			return nil, err
		}
	}

	replayer, err := dlq.NewReplayer(stores.DeadLetterStore(), options.enqueuer,
		dlq.WithLedger(stores.ProcessedEventStore()),
		dlq.WithReplayJobName(cfg.Queue.JobName),
		dlq.WithReplayObserver(observerFor("dlq")),
	)
	if err != nil {
		return nil, err
	}

	return &Gateway{
		config:    cfg,
		provider:  provider,
		logger:    logger,
		stores:    stores,
		gate:      gate,
		intake:    intake,
		processor: processor,
		runner:    runner,
		pool:      pool,
		replayer:  replayer,
		commands: Commands{
			IngestEvent:       command.NewIngestEventCommand(intake),
			ReplayDeadLetters: command.NewReplayDeadLettersCommand(replayer),
		},
	}, nil
}

func resolveConfig(ctx context.Context, options gatewayOptions) (core.Config, error) {
	defaults := core.DefaultConfig()
	loaded := defaults
	if options.configProvider != nil {
		var err error
		loaded, err = options.configProvider.Load(ctx, defaults)
		if err != nil {
			return core.Config{}, fmt.Errorf("gateway: load config: %w", err)
		}
	}
	resolver := options.optionsResolver
	if resolver == nil {
		resolver = core.GoOptionsResolver{}
	}
	cfg, err := resolver.Resolve(defaults, loaded, options.runtimeConfig)
	if err != nil {
		return core.Config{}, fmt.Errorf("gateway: resolve config: %w", err)
	}
	return cfg, nil
}

// Start launches the worker pool. It fails when the gateway was built
// without a dequeuer.
func (g *Gateway) Start(ctx context.Context) error {
	if g == nil {
		return fmt.Errorf("gateway: gateway is not configured")
	}
	if g.pool == nil {
		return fmt.Errorf("gateway: worker pool requires a dequeuer")
	}
	return g.pool.Start(ctx)
}

// Stop drains the worker pool, honoring ctx for the shutdown deadline.
func (g *Gateway) Stop(ctx context.Context) error {
	if g == nil || g.pool == nil {
		return nil
	}
	return g.pool.Stop(ctx)
}

func (g *Gateway) Config() core.Config {
	if g == nil {
		return core.Config{}
	}
	return g.config
}

func (g *Gateway) Gate() *signature.Gate {
	if g == nil {
		return nil
	}
	return g.gate
}

func (g *Gateway) Intake() *ingest.Service {
	if g == nil {
		return nil
	}
	return g.intake
}

func (g *Gateway) Processor() *processing.Processor {
	if g == nil {
		return nil
	}
	return g.processor
}

func (g *Gateway) Runner() *gojob.Runner {
	if g == nil {
		return nil
	}
	return g.runner
}

func (g *Gateway) Replayer() *dlq.Replayer {
	if g == nil {
		return nil
	}
	return g.replayer
}

func (g *Gateway) Commands() Commands {
	if g == nil {
		return Commands{}
	}
	return g.commands
}

func (g *Gateway) Stores() core.StoreProvider {
	if g == nil {
		return nil
	}
	return g.stores
}

// Logger returns the resolved root logger so embedding applications can
// attach their own components to the same sink.
func (g *Gateway) Logger() glog.Logger {
	if g == nil {
		return nil
	}
	return g.logger
}
