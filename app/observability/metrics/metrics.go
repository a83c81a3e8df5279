package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	RegisterRequestsTotal      metric.Int64Counter
	LoginRequestsTotal         metric.Int64Counter
	PasswordResetRequestsTotal metric.Int64Counter
	PasswordResetConsumedTotal metric.Int64Counter
	SessionEpochBumpsTotal     metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metric instruments exactly once.
// The Meter comes from the globally configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("go-user-accounts")
		m := &AppMetrics{}

		var err error
		m.RegisterRequestsTotal, err = meter.Int64Counter(
			"register_requests_total",
			metric.WithDescription("Total number of registration requests completed"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create register_requests_total: %v", err)
		}

		m.LoginRequestsTotal, err = meter.Int64Counter(
			"login_requests_total",
			metric.WithDescription("Total number of login attempts completed"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create login_requests_total: %v", err)
		}

		m.PasswordResetRequestsTotal, err = meter.Int64Counter(
			"password_reset_requests_total",
			metric.WithDescription("Total number of reset tokens issued"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create password_reset_requests_total: %v", err)
		}

		m.PasswordResetConsumedTotal, err = meter.Int64Counter(
			"password_reset_consumed_total",
			metric.WithDescription("Total number of reset tokens consumed successfully"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create password_reset_consumed_total: %v", err)
		}

		m.SessionEpochBumpsTotal, err = meter.Int64Counter(
			"session_epoch_bumps_total",
			metric.WithDescription("Total number of sign-out-everywhere epoch increments"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create session_epoch_bumps_total: %v", err)
		}

		appMetrics = m
	})
}

// Get returns the global metrics instance. InitAppMetrics must run first;
// callers tolerate a nil return in tests.
func Get() *AppMetrics {
	return appMetrics
}
