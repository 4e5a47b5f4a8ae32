// Package gologger bridges go-logger into the gateway and into go-job so
// both sides of the pipeline emit through the same logging stack.
package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// DefaultLoggerName is the root logger name for gateway components.
const DefaultLoggerName = "courier-gateway"

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	if strings.TrimSpace(name) == "" {
		name = DefaultLoggerName
	}
	return glog.Resolve(name, provider, logger)
}

// Component resolves a child logger for a named gateway component, e.g.
// "ingest" or "processing". The provider decides whether children share
// the root sink.
func Component(provider glog.LoggerProvider, component string) glog.Logger {
	component = strings.TrimSpace(component)
	if component == "" {
		component = DefaultLoggerName
	} else {
		component = DefaultLoggerName + "." + component
	}
	if provider == nil {
		_, logger := glog.Resolve(component, nil, nil)
		return logger
	}
	return provider.GetLogger(component)
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves glog logger/provider then returns equivalent go-job adapters.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
