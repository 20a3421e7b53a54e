package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/saunaworks/sauna-supervisor/internal/adapters"
	"github.com/saunaworks/sauna-supervisor/internal/bus"
	"github.com/saunaworks/sauna-supervisor/internal/metrics"
	"github.com/saunaworks/sauna-supervisor/internal/snapshot"
)

// fakeSupervisor drains commands off a bus and answers them, standing in
// for the real supervisor loop in these handler-level tests.
func fakeSupervisor(b *bus.Bus, done <-chan struct{}) {
	go func() {
		for {
			e, ok := b.Pop(done)
			if !ok {
				return
			}
			cmd, ok := e.(bus.OperatorCommandEvent)
			if !ok {
				continue
			}
			result := bus.CommandResult{Ok: true, Kind: "ok", Mcb: adapters.McbOn}
			if cmd.Command == adapters.CmdTurnOff {
				result.Mcb = adapters.McbOff
			}
			cmd.Result <- result
		}
	}()
}

func TestServer_HandleCommand(t *testing.T) {
	b := bus.New(bus.DefaultCapacity, (*metrics.Metrics)(nil))
	done := make(chan struct{})
	defer close(done)
	fakeSupervisor(b, done)

	broadcaster := snapshot.New((*metrics.Metrics)(nil))
	srv := New(":0", b, broadcaster)

	req := httptest.NewRequest("POST", "/api/mcb/off", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	var resp commandResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Ok || resp.Mcb != "off" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestServer_HandleCommandTimeout(t *testing.T) {
	b := bus.New(bus.DefaultCapacity, (*metrics.Metrics)(nil))
	// No consumer draining the bus: the command never gets answered.
	broadcaster := snapshot.New((*metrics.Metrics)(nil))
	srv := New(":0", b, broadcaster)

	orig := commandTimeout
	commandTimeout = 20 * time.Millisecond
	defer func() { commandTimeout = orig }()

	req := httptest.NewRequest("GET", "/api/mcb", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected gateway timeout, got %d", rec.Code)
	}
}

func TestServer_HandleEvents(t *testing.T) {
	b := bus.New(bus.DefaultCapacity, (*metrics.Metrics)(nil))
	broadcaster := snapshot.New((*metrics.Metrics)(nil))
	srv := New(":0", b, broadcaster)

	broadcaster.Publish(snapshot.Snapshot{Mcb: adapters.McbOn, At: time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/api/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	go srv.httpServer.Handler.ServeHTTP(rec, req)
	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)

	body := rec.Body.String()
	if !strings.Contains(body, "event: connected") {
		t.Fatalf("expected connected event, got: %s", body)
	}
	if !strings.Contains(body, "event: mcb_status") {
		t.Fatalf("expected mcb_status event, got: %s", body)
	}

	scanner := bufio.NewScanner(strings.NewReader(body))
	sawConnected := false
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "event: connected") {
			sawConnected = true
		}
	}
	if !sawConnected {
		t.Fatal("expected to scan a connected event line")
	}
}
