package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/gosuda/relaygate/internal/metrics"
)

var (
	ErrThrottled        = errors.New("notify: alert throttled")
	ErrPlatformNotFound = errors.New("notify: messenger platform not registered")
)

// Route sends alerts to one channel of one platform.
type Route struct {
	Platform string
	Channel  string
}

// Notifier fans alerts out to its routes. A token bucket caps the alert
// rate so a flood of rejected deliveries cannot flood the channel.
type Notifier struct {
	registry *Registry
	routes   []Route
	limiter  *rate.Limiter
}

// NewNotifier creates a Notifier allowing perMinute alerts with a burst of
// burst. perMinute <= 0 disables throttling.
func NewNotifier(registry *Registry, routes []Route, perMinute, burst int) *Notifier {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60), max(burst, 1))
	}
	return &Notifier{
		registry: registry,
		routes:   append([]Route(nil), routes...),
		limiter:  limiter,
	}
}

// Notify sends a to every route. Delivery errors are joined; a route whose
// platform is not registered fails with ErrPlatformNotFound.
func (n *Notifier) Notify(ctx context.Context, a Alert) error {
	if !n.limiter.Allow() {
		metrics.AlertsTotal.WithLabelValues("throttled").Inc()
		log.Warn().Str("title", a.Title).Msg("notify: alert throttled")
		return ErrThrottled
	}

	var errs []error
	for _, route := range n.routes {
		m, ok := n.registry.Get(route.Platform)
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %w", route.Platform, ErrPlatformNotFound))
			continue
		}
		if err := m.Send(ctx, route.Channel, a); err != nil {
			errs = append(errs, err)
			continue
		}
		metrics.AlertsTotal.WithLabelValues("sent").Inc()
	}

	if err := errors.Join(errs...); err != nil {
		metrics.AlertsTotal.WithLabelValues("failed").Add(float64(len(errs)))
		return fmt.Errorf("notify.Notify: %w", err)
	}
	return nil
}
