package health

import (
	"context"
	"testing"
	"time"
)

// mockService is a simple probeable service for health testing.
type mockService struct {
	healthy bool
}

func (m *mockService) HealthCheck(ctx context.Context) (bool, error) {
	return m.healthy, nil
}

func (m *mockService) Name() string {
	return "mock-health-test"
}

// TestHealthChecker tests the health checking functionality.
func TestHealthChecker(t *testing.T) {
	t.Run("initial state is healthy", func(t *testing.T) {
		mock := &mockService{healthy: true}
		checker := NewHealthChecker(mock, 1*time.Second, 3)

		status := checker.GetStatus()

		if !status.IsHealthy {
			t.Error("Initial state should be healthy")
		}

		if status.ConsecutiveFails != 0 {
			t.Errorf("ConsecutiveFails = %d, want 0", status.ConsecutiveFails)
		}
	})

	t.Run("marks unhealthy only after threshold", func(t *testing.T) {
		mock := &mockService{healthy: false}
		checker := NewHealthChecker(mock, 1*time.Hour, 3)

		ctx := context.Background()
		checker.performCheck(ctx)
		checker.performCheck(ctx)

		status := checker.GetStatus()
		if !status.IsHealthy {
			t.Error("Should still be healthy below threshold")
		}
		if status.ConsecutiveFails != 2 {
			t.Errorf("ConsecutiveFails = %d, want 2", status.ConsecutiveFails)
		}

		checker.performCheck(ctx)
		status = checker.GetStatus()
		if status.IsHealthy {
			t.Error("Should be unhealthy at threshold")
		}
	})

	t.Run("success resets failure counter", func(t *testing.T) {
		mock := &mockService{healthy: false}
		checker := NewHealthChecker(mock, 1*time.Hour, 3)

		ctx := context.Background()
		checker.performCheck(ctx)
		checker.performCheck(ctx)
		checker.performCheck(ctx)

		if checker.GetStatus().IsHealthy {
			t.Error("Should be unhealthy after three failures")
		}

		mock.healthy = true
		checker.performCheck(ctx)

		status := checker.GetStatus()
		if !status.IsHealthy {
			t.Error("Should recover on success")
		}
		if status.ConsecutiveFails != 0 {
			t.Errorf("ConsecutiveFails = %d, want 0", status.ConsecutiveFails)
		}
		if status.ErrorMessage != "" {
			t.Errorf("ErrorMessage = %q, want empty", status.ErrorMessage)
		}
	})

	t.Run("stop can be called multiple times", func(t *testing.T) {
		mock := &mockService{healthy: true}
		checker := NewHealthChecker(mock, 1*time.Second, 3)

		checker.Stop()
		checker.Stop()
		checker.Stop()
	})
}

// TestNewHealthChecker tests constructor.
func TestNewHealthChecker(t *testing.T) {
	mock := &mockService{healthy: true}
	checker := NewHealthChecker(mock, 5*time.Minute, 3)

	if checker == nil {
		t.Fatal("NewHealthChecker returned nil")
	}

	if checker.ServiceName() != "mock-health-test" {
		t.Errorf("ServiceName = %q", checker.ServiceName())
	}

	status := checker.GetStatus()
	if !status.IsHealthy {
		t.Error("Initial status should be healthy")
	}
}
