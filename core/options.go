package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

func DefaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return gatewayErrorMapper(err)
}

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	queue := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Queue.Name) != "" {
		queue["name"] = cfg.Queue.Name
	}
	if includeZero || strings.TrimSpace(cfg.Queue.JobName) != "" {
		queue["job_name"] = cfg.Queue.JobName
	}
	if includeZero || strings.TrimSpace(cfg.Queue.DeadLetterJobName) != "" {
		queue["dead_letter_job_name"] = cfg.Queue.DeadLetterJobName
	}
	if len(queue) > 0 {
		layer["queue"] = queue
	}

	if includeZero || cfg.Signature.ToleranceSeconds > 0 {
		layer["signature"] = map[string]any{
			"tolerance_seconds": cfg.Signature.ToleranceSeconds,
		}
	}

	retry := map[string]any{}
	if includeZero || cfg.Retry.MaxAttempts > 0 {
		retry["max_attempts"] = cfg.Retry.MaxAttempts
	}
	if includeZero || cfg.Retry.BaseDelayMS > 0 {
		retry["base_delay_ms"] = cfg.Retry.BaseDelayMS
	}
	if includeZero || cfg.Retry.Multiplier > 0 {
		retry["multiplier"] = cfg.Retry.Multiplier
	}
	if includeZero || cfg.Retry.JitterPercent > 0 {
		retry["jitter_percent"] = cfg.Retry.JitterPercent
	}
	if len(retry) > 0 {
		layer["retry"] = retry
	}

	if includeZero || cfg.Worker.Concurrency > 0 {
		layer["worker"] = map[string]any{
			"concurrency": cfg.Worker.Concurrency,
		}
	}

	retention := map[string]any{}
	if includeZero || cfg.Retention.ProcessedDays > 0 {
		retention["processed_days"] = cfg.Retention.ProcessedDays
	}
	if includeZero || cfg.Retention.DeadLetterDays > 0 {
		retention["dead_letter_days"] = cfg.Retention.DeadLetterDays
	}
	if len(retention) > 0 {
		layer["retention"] = retention
	}

	return layer
}
