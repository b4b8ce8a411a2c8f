// Package push delivers the metrics of a finished batch to a Prometheus
// Pushgateway. A batch exits before any scrape could reach it, so its
// counters are pushed instead.
package push

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	pgw "github.com/prometheus/client_golang/prometheus/push"
)

// RequestTimeout for push requests
const RequestTimeout = 10 * time.Second

// Service pushes gathered metrics under one job name.
type Service struct {
	url    string
	job    string
	client *http.Client
	logger *slog.Logger
}

// NewService creates a pusher for the gateway at url. An empty url disables
// pushing.
func NewService(url, job string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		url: url,
		job: job,
		client: &http.Client{
			Timeout: RequestTimeout,
		},
		logger: logger,
	}
}

// Enabled reports whether a gateway is configured.
func (s *Service) Enabled() bool {
	return s.url != ""
}

// Push replaces the metrics of the job and grouping on the gateway with the
// current state of g.
func (s *Service) Push(ctx context.Context, g prometheus.Gatherer, grouping map[string]string) error {
	if !s.Enabled() {
		return nil
	}

	p := pgw.New(s.url, s.job).Gatherer(g).Client(s.client)
	names := make([]string, 0, len(grouping))
	for name := range grouping {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p = p.Grouping(name, grouping[name])
	}

	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", s.url, err)
	}

	s.logger.Info("metrics pushed",
		slog.String("gateway", s.url),
		slog.String("job", s.job),
	)
	return nil
}
