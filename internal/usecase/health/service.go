// Package health aggregates dependency probes into the /healthz report.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Status is the aggregated verdict.
type Status string

const (
	Healthy   Status = "ok"
	Degraded  Status = "degraded"
	Unhealthy Status = "error"
)

// CheckResult is the outcome of one probe.
type CheckResult string

const (
	CheckOK    CheckResult = "ok"
	CheckError CheckResult = "error"
)

// Report is the /healthz body.
type Report struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks"`
}

// Probe reports whether one dependency is reachable.
type Probe func(ctx context.Context) error

// DefaultProbeTimeout bounds a single probe.
const DefaultProbeTimeout = 2 * time.Second

type namedProbe struct {
	name  string
	probe Probe
}

// Service runs every registered probe concurrently. With no probes it is Healthy.
type Service struct {
	probes  []namedProbe
	timeout time.Duration
	logger  *zap.Logger
}

// New creates an empty Service. A non-positive timeout uses DefaultProbeTimeout.
func New(timeout time.Duration, logger *zap.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{timeout: timeout, logger: logger}
}

// Register adds a probe under name. A nil probe is ignored.
func (s *Service) Register(name string, p Probe) *Service {
	if p != nil {
		s.probes = append(s.probes, namedProbe{name: name, probe: p})
	}
	return s
}

// Check runs the probes. All failing is Unhealthy, some failing is Degraded.
func (s *Service) Check(ctx context.Context) Report {
	var (
		mu     sync.Mutex
		failed int
	)
	checks := make(map[string]CheckResult, len(s.probes))

	g, gctx := errgroup.WithContext(ctx)
	for _, np := range s.probes {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()

			res := CheckOK
			if err := np.probe(pctx); err != nil {
				res = CheckError
				s.logger.Warn("Health probe failed", zap.String("probe", np.name), zap.Error(err))
			}

			mu.Lock()
			defer mu.Unlock()
			checks[np.name] = res
			if res == CheckError {
				failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	status := Healthy
	switch {
	case failed > 0 && failed == len(s.probes):
		status = Unhealthy
	case failed > 0:
		status = Degraded
	}
	return Report{Status: status, Checks: checks}
}
