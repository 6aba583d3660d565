package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) PingContext(context.Context) error {
	return m.pingErr
}

// mockPolicyChecker implements PolicyChecker for tests.
type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		pinger  Pinger
		policy  PolicyChecker
		wantErr bool
	}{
		{"nil dependencies", nil, nil, false},
		{"pinger ok", &mockPinger{}, nil, false},
		{"pinger failure", &mockPinger{pingErr: errors.New("connection refused")}, nil, true},
		{"policy ok", nil, &mockPolicyChecker{}, false},
		{"policy failure", nil, &mockPolicyChecker{healthErr: errors.New("rego compile failed")}, true},
		{"both, policy fails", &mockPinger{}, &mockPolicyChecker{healthErr: errors.New("policy error")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewChecker(tt.pinger, tt.policy, nil).Check(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestReady(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker(&mockPinger{}, &mockPolicyChecker{}, nil).Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	NewChecker(&mockPinger{pingErr: errors.New("down")}, nil, nil).Ready(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestLive(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker(&mockPinger{pingErr: errors.New("down")}, nil, nil).Live(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("liveness must not depend on the database: status = %d", rec.Code)
	}
}

func TestUpdate_SetsServingStatus(t *testing.T) {
	hs := health.NewServer()
	pinger := &mockPinger{}
	c := NewChecker(pinger, nil, nil)

	c.update(context.Background(), hs)
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}

	pinger.pingErr = errors.New("connection refused")
	c.update(context.Background(), hs)
	resp, _ = hs.Check(context.Background(), &healthpb.HealthCheckRequest{})
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", resp.GetStatus())
	}
}

func TestSync_StopsOnCancel(t *testing.T) {
	hs := health.NewServer()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewChecker(nil, nil, nil).Sync(ctx, hs, 10*time.Millisecond)
		close(done)
	}()
	cancel()
	<-done
}
