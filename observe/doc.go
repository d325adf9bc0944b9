// Package observe provides OpenTelemetry-based observability for operations
// guarded by the resilience package's primitives.
//
// It is a pure instrumentation library: no execution, no transport, no I/O
// beyond exporter setup. Consumers wire the Observer's Middleware around a
// resilience.Chain, and use [Hooks] to feed circuit-breaker transitions,
// retry attempts, rate-limit decisions, timeouts, and fallback invocations
// into the same tracer/metrics/logger.
//
// # Overview
//
// observe provides three observability pillars:
//   - Tracing: OpenTelemetry spans with operation metadata attributes
//   - Metrics: Execution counters and duration histograms
//   - Logging: Structured JSON logging with automatic field redaction, plus
//     an outcome field distinguishing a resilience rejection (circuit open,
//     rate limited, bulkhead full) from an operation failure
//
// # Core Components
//
//   - [Observer]: Main facade providing Tracer, Meter, and Logger access
//   - [Tracer]: Span creation with operation metadata as span attributes
//   - [Metrics]: Records execution counts, errors, and duration histograms
//   - [Logger]: Structured JSON logging with sensitive field redaction
//   - [Middleware]: Wraps ExecuteFunc with complete observability and
//     resilience-outcome classification
//   - [Hooks]: Adapts an Observer into the resilience package's OnXxx
//     callback shapes
//
// # Quick Start
//
//	cfg := observe.Config{
//	    ServiceName: "my-service",
//	    Version:     "1.0.0",
//	    Tracing:     observe.TracingConfig{Enabled: true, Exporter: "otlp", SamplePct: 1.0},
//	    Metrics:     observe.MetricsConfig{Enabled: true, Exporter: "prometheus"},
//	    Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
//	}
//
//	obs, err := observe.NewObserver(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer obs.Shutdown(ctx)
//
//	// Create middleware and wrap an operation
//	mw, _ := observe.MiddlewareFromObserver(obs)
//	wrapped := mw.Wrap(originalExecuteFunc)
//
//	// Execute - automatically traced, metered, and logged, with the
//	// outcome classified against resilience's sentinel/typed errors.
//	result, err := wrapped(ctx, opMeta, input)
//
// # Telemetry Details
//
// Tracing creates spans with deterministic names:
//   - With namespace: "resilience.op.<namespace>.<name>" (e.g., "resilience.op.payments.charge")
//   - Without namespace: "resilience.op.<name>" (e.g., "resilience.op.charge")
//
// Span attributes include:
//   - resilience.op.id: Fully qualified operation identifier
//   - resilience.op.name: Operation name (required)
//   - resilience.op.namespace: Operation namespace (if set)
//   - resilience.op.version: Operation version (if set)
//   - resilience.op.category: Operation category (if set)
//   - resilience.op.tags: Discovery tags (if set)
//   - resilience.op.error: Boolean indicating execution failure
//
// Metrics recorded:
//   - resilience.op.total (counter): Total executions by operation
//   - resilience.op.errors (counter): Total errors by operation
//   - resilience.op.duration_ms (histogram): Duration distribution in milliseconds
//
// All metrics include labels: resilience.op.id, resilience.op.name,
// resilience.op.namespace (if set).
//
// # Sensitive Field Redaction
//
// The logger automatically redacts these fields to prevent credential leakage:
//   - input, inputs
//   - password, secret, token
//   - api_key, apiKey, credential
//
// See [RedactedFields] for the complete list.
//
// # Exporter Configuration
//
// Tracing exporters:
//   - "otlp": OTLP gRPC (requires OTEL_EXPORTER_OTLP_ENDPOINT or OTEL_EXPORTER_OTLP_TRACES_ENDPOINT)
//   - "jaeger": Jaeger via OTLP (requires OTEL_EXPORTER_JAEGER_ENDPOINT)
//   - "stdout": Console output for development
//   - "none" or "": Disabled (no-op)
//
// Metrics exporters:
//   - "otlp": OTLP gRPC (requires OTEL_EXPORTER_OTLP_ENDPOINT or OTEL_EXPORTER_OTLP_METRICS_ENDPOINT)
//   - "prometheus": Prometheus scrape endpoint
//   - "stdout": Console output for development
//   - "none" or "": Disabled (no-op)
//
// # Thread Safety
//
// All exported types are safe for concurrent use after construction:
//   - [Observer]: Tracer(), Meter(), Logger() are safe; Shutdown() is idempotent
//   - [Tracer]: StartSpan() and EndSpan() are safe for concurrent use
//   - [Metrics]: RecordExecution() is safe for concurrent use
//   - [Logger]: All logging methods are mutex-protected
//   - [Middleware]: Wrap() returns a thread-safe ExecuteFunc
//   - [Hooks]: every method is safe to pass directly as a resilience
//     config callback, including concurrently from multiple primitives
//
// # Error Handling
//
// Configuration errors (use errors.Is for checking):
//   - [ErrMissingServiceName]: Config.ServiceName is empty
//   - [ErrInvalidSamplePct]: Tracing.SamplePct not in [0.0, 1.0]
//   - [ErrInvalidTracingExporter]: Unknown tracing exporter name
//   - [ErrInvalidMetricsExporter]: Unknown metrics exporter name
//   - [ErrInvalidLogLevel]: Unknown log level
//
// Exporter errors:
//   - [ErrEndpointNotConfigured]: Required endpoint env var not set
//
// Runtime errors:
//   - [ErrNilObserver]: Nil Observer passed to function
//   - [ErrMissingOperationName]: OperationMeta.Name is empty
//
// Example error handling:
//
//	obs, err := observe.NewObserver(ctx, cfg)
//	if errors.Is(err, observe.ErrMissingServiceName) {
//	    // Handle missing service name
//	}
//	if errors.Is(err, observe.ErrEndpointNotConfigured) {
//	    // Handle missing OTLP endpoint
//	}
//
// # Integration with resilience
//
// observe depends on resilience (never the reverse): [Hooks] wraps an
// Observer's Logger so it can be passed straight into
// resilience.CircuitBreakerConfig.OnStateChange,
// resilience.RetryConfig.OnRetry, resilience.TimeoutConfig.OnTimeout,
// resilience.RateLimiterConfig.OnAllow/OnDeny/OnError, and
// resilience.FallbackConfig.OnFallback, so every primitive in a chain
// reports through the same structured log sink as the operation's own
// Middleware-wrapped execution.
package observe
