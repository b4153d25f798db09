package baselink

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDisabledMux_UnsubscribeClosesChannel(t *testing.T) {
	d := NewDisabledMux()
	id, ch := d.Subscribe()

	done := make(chan struct{})
	go func() {
		_, ok := <-ch
		if ok {
			t.Errorf("expected channel to be closed on unsubscribe")
		}
		close(done)
	}()

	// Give goroutine a moment to start and block on read
	time.Sleep(10 * time.Millisecond)

	d.Unsubscribe(id)

	select {
	case <-done:
		// success
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for subscriber to be unblocked after Unsubscribe")
	}
}

func TestDisabledMux_CloseClosesAllChannels(t *testing.T) {
	d := NewDisabledMux()
	id1, ch1 := d.Subscribe()
	_, ch2 := d.Subscribe()

	done1 := make(chan struct{})
	done2 := make(chan struct{})

	go func() {
		_, ok := <-ch1
		if ok {
			t.Errorf("expected ch1 to be closed on Close")
		}
		close(done1)
	}()

	go func() {
		_, ok := <-ch2
		if ok {
			t.Errorf("expected ch2 to be closed on Close")
		}
		close(done2)
	}()

	// Give goroutines a moment to start and block on read
	time.Sleep(10 * time.Millisecond)

	if err := d.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	select {
	case <-done1:
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for ch1 to be closed after Close")
	}

	select {
	case <-done2:
	case <-time.After(1 * time.Second):
		t.Fatalf("timeout waiting for ch2 to be closed after Close")
	}

	// Ensure unsubscribing a non-existent id is a no-op (should not panic)
	d.Unsubscribe(id1)
}

func TestDisabledMux_SubscribeAfterClose(t *testing.T) {
	d := NewDisabledMux()
	if err := d.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	_, ch := d.Subscribe()
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected a closed channel from Subscribe after Close")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Subscribe after Close returned a channel that blocks")
	}
}

func TestDisabledMux_NoOpCommands(t *testing.T) {
	d := NewDisabledMux()
	defer d.Close()

	if err := d.SendCommand("E1"); err != nil {
		t.Errorf("SendCommand returned error: %v", err)
	}
	if err := d.SendVelocity(0.1, 0.1); err != nil {
		t.Errorf("SendVelocity returned error: %v", err)
	}
	if err := d.SetMotorEnable(true); err != nil {
		t.Errorf("SetMotorEnable returned error: %v", err)
	}
	if err := d.SetTelemetryRate(20); err != nil {
		t.Errorf("SetTelemetryRate returned error: %v", err)
	}
	if err := d.ZeroOdometry(); err != nil {
		t.Errorf("ZeroOdometry returned error: %v", err)
	}
	if err := d.RequestStatus(); err != nil {
		t.Errorf("RequestStatus returned error: %v", err)
	}
	if err := d.Initialize(); err != nil {
		t.Errorf("Initialize returned error: %v", err)
	}
}

func TestDisabledMux_MonitorWaitsForContext(t *testing.T) {
	d := NewDisabledMux()
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- d.Monitor(ctx)
	}()

	// Monitor should not return while the context is alive.
	select {
	case err := <-done:
		t.Fatalf("Monitor returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected context error from Monitor")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Monitor did not return after context cancellation")
	}
}

func TestDisabledMux_AttachAdminRoutes(t *testing.T) {
	d := NewDisabledMux()
	defer d.Close()

	httpMux := http.NewServeMux()
	d.AttachAdminRoutes(httpMux)

	req := httptest.NewRequest(http.MethodGet, "/debug/base-disabled", nil)
	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("GET /debug/base-disabled = %d, want %d", w.Code, http.StatusOK)
	}
}

// MuxInterface must be satisfied by every mux variant.
var (
	_ MuxInterface = (*DisabledMux)(nil)
	_ MuxInterface = (*Mux[*MockBase])(nil)
)
