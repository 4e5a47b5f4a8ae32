package core

import (
	"fmt"
	"strings"
	"time"
)

type QueueConfig struct {
	Name              string `koanf:"name" mapstructure:"name"`
	JobName           string `koanf:"job_name" mapstructure:"job_name"`
	DeadLetterJobName string `koanf:"dead_letter_job_name" mapstructure:"dead_letter_job_name"`
}

type SignatureConfig struct {
	ToleranceSeconds int `koanf:"tolerance_seconds" mapstructure:"tolerance_seconds"`
}

type RetryConfig struct {
	MaxAttempts   int     `koanf:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMS   int     `koanf:"base_delay_ms" mapstructure:"base_delay_ms"`
	Multiplier    float64 `koanf:"multiplier" mapstructure:"multiplier"`
	JitterPercent int     `koanf:"jitter_percent" mapstructure:"jitter_percent"`
}

type WorkerConfig struct {
	Concurrency int `koanf:"concurrency" mapstructure:"concurrency"`
}

type RetentionConfig struct {
	ProcessedDays  int `koanf:"processed_days" mapstructure:"processed_days"`
	DeadLetterDays int `koanf:"dead_letter_days" mapstructure:"dead_letter_days"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Queue       QueueConfig     `koanf:"queue" mapstructure:"queue"`
	Signature   SignatureConfig `koanf:"signature" mapstructure:"signature"`
	Retry       RetryConfig     `koanf:"retry" mapstructure:"retry"`
	Worker      WorkerConfig    `koanf:"worker" mapstructure:"worker"`
	Retention   RetentionConfig `koanf:"retention" mapstructure:"retention"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "courier-gateway",
		Queue: QueueConfig{
			Name:              "courier-events-main",
			JobName:           "courier-event",
			DeadLetterJobName: "dead-letter-event",
		},
		Signature: SignatureConfig{
			ToleranceSeconds: 300,
		},
		Retry: RetryConfig{
			MaxAttempts:   5,
			BaseDelayMS:   1000,
			Multiplier:    2,
			JitterPercent: 20,
		},
		Worker: WorkerConfig{
			Concurrency: 10,
		},
		Retention: RetentionConfig{
			ProcessedDays:  30,
			DeadLetterDays: 90,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Queue.Name) == "" {
		return fmt.Errorf("core: queue.name is required")
	}
	if strings.TrimSpace(c.Queue.JobName) == "" {
		return fmt.Errorf("core: queue.job_name is required")
	}
	if strings.TrimSpace(c.Queue.DeadLetterJobName) == "" {
		return fmt.Errorf("core: queue.dead_letter_job_name is required")
	}
	if c.Signature.ToleranceSeconds <= 0 {
		return fmt.Errorf("core: signature.tolerance_seconds must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("core: retry.max_attempts must be >= 1")
	}
	if c.Retry.BaseDelayMS < 0 {
		return fmt.Errorf("core: retry.base_delay_ms must not be negative")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("core: retry.multiplier must be >= 1")
	}
	if c.Retry.JitterPercent < 0 || c.Retry.JitterPercent > 100 {
		return fmt.Errorf("core: retry.jitter_percent must be between 0 and 100")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("core: worker.concurrency must be >= 1")
	}
	if c.Retention.ProcessedDays < 1 {
		return fmt.Errorf("core: retention.processed_days must be >= 1")
	}
	if c.Retention.DeadLetterDays < 1 {
		return fmt.Errorf("core: retention.dead_letter_days must be >= 1")
	}
	return nil
}

// ProcessedRetention returns the processed-event expiry window as a duration.
func (c Config) ProcessedRetention() time.Duration {
	return time.Duration(c.Retention.ProcessedDays) * 24 * time.Hour
}

// DeadLetterRetention returns the dead-letter expiry window as a duration.
func (c Config) DeadLetterRetention() time.Duration {
	return time.Duration(c.Retention.DeadLetterDays) * 24 * time.Hour
}
