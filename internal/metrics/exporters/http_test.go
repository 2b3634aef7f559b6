package exporters

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/smazurov/protoframe/internal/events"
	"github.com/smazurov/protoframe/internal/metrics"
)

func TestHTTPHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	c.Handle(events.Started{Meta: events.Meta{RunID: "http-test"}})

	handler := HTTPHandler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := w.Body.String(); !strings.Contains(body, "protoframe_supervisor_running 1") {
		t.Errorf("expected running gauge in response, got:\n%s", body)
	}
}

func TestServerServeAndShutdown(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewCollector(reg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := Listen("127.0.0.1:0", reg, logger)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "protoframe_ffmpeg_fps") {
		t.Error("expected ffmpeg gauges in response")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestListenBadAddress(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := Listen("not-an-address", prometheus.NewRegistry(), logger); err == nil {
		t.Error("expected error for bad address")
	}
}
