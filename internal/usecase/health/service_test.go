package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func ok(context.Context) error { return nil }

func fail(context.Context) error { return errors.New("connection refused") }

func TestService_Check(t *testing.T) {
	tests := []struct {
		name   string
		probes map[string]Probe
		want   Status
		checks map[string]CheckResult
	}{
		{
			name:   "no probes",
			probes: nil,
			want:   Healthy,
			checks: map[string]CheckResult{},
		},
		{
			name:   "all pass",
			probes: map[string]Probe{"database": ok, "embedding": ok, "warehouse": ok},
			want:   Healthy,
			checks: map[string]CheckResult{"database": CheckOK, "embedding": CheckOK, "warehouse": CheckOK},
		},
		{
			name:   "warehouse down",
			probes: map[string]Probe{"database": ok, "warehouse": fail},
			want:   Degraded,
			checks: map[string]CheckResult{"database": CheckOK, "warehouse": CheckError},
		},
		{
			name:   "everything down",
			probes: map[string]Probe{"database": fail, "embedding": fail},
			want:   Unhealthy,
			checks: map[string]CheckResult{"database": CheckError, "embedding": CheckError},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(time.Second, nil)
			for name, p := range tt.probes {
				s.Register(name, p)
			}

			r := s.Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("status = %q, want %q", r.Status, tt.want)
			}
			if len(r.Checks) != len(tt.checks) {
				t.Fatalf("checks = %v, want %v", r.Checks, tt.checks)
			}
			for name, want := range tt.checks {
				if r.Checks[name] != want {
					t.Errorf("%s = %q, want %q", name, r.Checks[name], want)
				}
			}
		})
	}
}

func TestService_Register_NilIgnored(t *testing.T) {
	s := New(0, nil).Register("embedding", nil)
	if r := s.Check(context.Background()); r.Status != Healthy || len(r.Checks) != 0 {
		t.Errorf("nil probe was registered: %+v", r)
	}
}

func TestService_Check_ProbeTimeout(t *testing.T) {
	hang := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	s := New(20*time.Millisecond, nil).Register("database", ok).Register("embedding", hang)

	start := time.Now()
	r := s.Check(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("hung probe was not cut off after %v", elapsed)
	}
	if r.Status != Degraded || r.Checks["embedding"] != CheckError {
		t.Errorf("got %+v", r)
	}
}
