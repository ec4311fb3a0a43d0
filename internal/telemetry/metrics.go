package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/ownerportal"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Payout metrics
	PayoutsCreatedTotal  metric.Int64Counter
	PayoutsRejectedTotal metric.Int64Counter
	InvoicesStoredTotal  metric.Int64Counter
	InvoicesOrphanTotal  metric.Int64Counter

	// Role and company resolution
	RoleAssignmentsTotal  metric.Int64Counter
	CompaniesCreatedTotal metric.Int64Counter
	LegacyLinkageHits     metric.Int64Counter

	// Provisioning
	UsersProvisionedTotal  metric.Int64Counter
	ProvisionFailuresTotal metric.Int64Counter
	CompensationsTotal     metric.Int64Counter

	// Authorization
	AuthzDenialsTotal metric.Int64Counter
	RateLimitedTotal  metric.Int64Counter
	UpstreamTimeouts  metric.Int64Counter
	RequestDurationMs metric.Float64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// Add increments counter by one with the given string attributes as key/value pairs.
func Add(ctx context.Context, counter metric.Int64Counter, kv ...string) {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.PayoutsCreatedTotal, _ = meter.Int64Counter(
		"ownerportal.payouts.created.total",
		metric.WithDescription("Total number of payout requests created from balance"),
		metric.WithUnit("{payout}"),
	)

	m.PayoutsRejectedTotal, _ = meter.Int64Counter(
		"ownerportal.payouts.rejected.total",
		metric.WithDescription("Total number of payout requests rejected, by reason"),
		metric.WithUnit("{payout}"),
	)

	m.InvoicesStoredTotal, _ = meter.Int64Counter(
		"ownerportal.invoices.stored.total",
		metric.WithDescription("Total number of invoice files stored"),
		metric.WithUnit("{file}"),
	)

	m.InvoicesOrphanTotal, _ = meter.Int64Counter(
		"ownerportal.invoices.orphaned.total",
		metric.WithDescription("Invoices stored for a payout that then failed"),
		metric.WithUnit("{file}"),
	)

	m.RoleAssignmentsTotal, _ = meter.Int64Counter(
		"ownerportal.roles.resolved.total",
		metric.WithDescription("Role resolutions, by action"),
		metric.WithUnit("{resolution}"),
	)

	m.CompaniesCreatedTotal, _ = meter.Int64Counter(
		"ownerportal.companies.created.total",
		metric.WithDescription("Companies created on first use"),
		metric.WithUnit("{company}"),
	)

	m.LegacyLinkageHits, _ = meter.Int64Counter(
		"ownerportal.companies.legacy_linkage.total",
		metric.WithDescription("Company resolutions served by the legacy cars/members linkage"),
		metric.WithUnit("{resolution}"),
	)

	m.UsersProvisionedTotal, _ = meter.Int64Counter(
		"ownerportal.provisioning.users.total",
		metric.WithDescription("Partner users provisioned by admins"),
		metric.WithUnit("{user}"),
	)

	m.ProvisionFailuresTotal, _ = meter.Int64Counter(
		"ownerportal.provisioning.failures.total",
		metric.WithDescription("Provisioning attempts that failed, by step"),
		metric.WithUnit("{attempt}"),
	)

	m.CompensationsTotal, _ = meter.Int64Counter(
		"ownerportal.provisioning.compensations.total",
		metric.WithDescription("Compensating identity deletes, by outcome"),
		metric.WithUnit("{compensation}"),
	)

	m.AuthzDenialsTotal, _ = meter.Int64Counter(
		"ownerportal.authz.denials.total",
		metric.WithDescription("Authorization denials, by action and reason"),
		metric.WithUnit("{denial}"),
	)

	m.RateLimitedTotal, _ = meter.Int64Counter(
		"ownerportal.ratelimit.limited.total",
		metric.WithDescription("Requests rejected by the rate limiter"),
		metric.WithUnit("{request}"),
	)

	m.UpstreamTimeouts, _ = meter.Int64Counter(
		"ownerportal.upstream.timeouts.total",
		metric.WithDescription("Calls that hit their timeout class deadline"),
		metric.WithUnit("{call}"),
	)

	m.RequestDurationMs, _ = meter.Float64Histogram(
		"ownerportal.http.request.duration",
		metric.WithDescription("Duration of HTTP requests"),
		metric.WithUnit("ms"),
	)

	return m
}
