package health

import (
	"context"
	"testing"
)

func ok(name string) Checker {
	return func(ctx context.Context) Status {
		return Status{Name: name, Healthy: true}
	}
}

func failing(name, detail string) Checker {
	return func(ctx context.Context) Status {
		return Status{Name: name, Healthy: false, Detail: detail}
	}
}

func TestEmptyRegistryIsHealthy(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Error("empty registry should be healthy")
	}
	if len(statuses) != 0 {
		t.Errorf("expected no statuses, got %d", len(statuses))
	}
}

func TestAllHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("database", ok("database"))
	r.Register("sweeper", ok("sweeper"))

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Error("expected healthy aggregate")
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	// Registration order is preserved.
	if statuses[0].Name != "database" || statuses[1].Name != "sweeper" {
		t.Errorf("statuses out of order: %v", statuses)
	}
}

func TestOneFailingSubsystem(t *testing.T) {
	r := NewRegistry()
	r.Register("database", ok("database"))
	r.Register("outbox_worker", failing("outbox_worker", "not running"))

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Error("aggregate should be unhealthy")
	}
	if statuses[1].Detail != "not running" {
		t.Errorf("expected detail on failing status, got %q", statuses[1].Detail)
	}
}

func TestRegisterReplacesByName(t *testing.T) {
	r := NewRegistry()
	r.Register("database", failing("database", "connecting"))
	r.Register("database", ok("database"))

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Error("replaced checker should report healthy")
	}
	if len(statuses) != 1 {
		t.Errorf("expected a single status after replacement, got %d", len(statuses))
	}
}
