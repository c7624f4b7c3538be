// Package telemetry provides OpenTelemetry metrics for the caregate auth
// service, exported in Prometheus format.
//
// The provider records login, registration, and password-reset outcomes
// plus an active-session gauge. All record methods are nil-safe so callers
// can run without telemetry wired.
package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Provider holds the meter provider and the auth counters.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter

	loginCounter        metric.Int64Counter
	registrationCounter metric.Int64Counter
	resetCounter        metric.Int64Counter
	activeSessions      metric.Int64UpDownCounter
}

// NewProvider creates a Provider exporting via the Prometheus default
// registry.
func NewProvider(serviceName string) (*Provider, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}

	p := &Provider{
		meterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)),
	}
	p.meter = p.meterProvider.Meter(serviceName)

	if p.loginCounter, err = p.meter.Int64Counter("auth_login_total",
		metric.WithDescription("Login attempts by result")); err != nil {
		return nil, err
	}
	if p.registrationCounter, err = p.meter.Int64Counter("auth_registration_total",
		metric.WithDescription("Registration attempts by result")); err != nil {
		return nil, err
	}
	if p.resetCounter, err = p.meter.Int64Counter("auth_password_reset_total",
		metric.WithDescription("Password reset attempts by result")); err != nil {
		return nil, err
	}
	if p.activeSessions, err = p.meter.Int64UpDownCounter("auth_active_sessions",
		metric.WithDescription("Sessions issued minus sessions revoked")); err != nil {
		return nil, err
	}

	return p, nil
}

// Handler returns the Prometheus scrape endpoint.
func (p *Provider) Handler() http.Handler {
	return promhttp.Handler()
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.meterProvider == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}

func result(success bool) attribute.KeyValue {
	if success {
		return attribute.String("result", "success")
	}
	return attribute.String("result", "failure")
}

// RecordLogin counts a login attempt.
func (p *Provider) RecordLogin(ctx context.Context, success bool) {
	if p == nil || p.loginCounter == nil {
		return
	}
	p.loginCounter.Add(ctx, 1, metric.WithAttributes(result(success)))
}

// RecordRegistration counts a registration attempt.
func (p *Provider) RecordRegistration(ctx context.Context, success bool) {
	if p == nil || p.registrationCounter == nil {
		return
	}
	p.registrationCounter.Add(ctx, 1, metric.WithAttributes(result(success)))
}

// RecordPasswordReset counts a reset-password attempt.
func (p *Provider) RecordPasswordReset(ctx context.Context, success bool) {
	if p == nil || p.resetCounter == nil {
		return
	}
	p.resetCounter.Add(ctx, 1, metric.WithAttributes(result(success)))
}

// SessionOpened bumps the active-session gauge.
func (p *Provider) SessionOpened(ctx context.Context) {
	if p == nil || p.activeSessions == nil {
		return
	}
	p.activeSessions.Add(ctx, 1)
}

// SessionClosed drops the active-session gauge.
func (p *Provider) SessionClosed(ctx context.Context) {
	if p == nil || p.activeSessions == nil {
		return
	}
	p.activeSessions.Add(ctx, -1)
}
