package telemetry

import (
	"context"
	"log/slog"
	"testing"

	"banyan/config"
)

func TestInitTracer_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), config.TelemetryConfig{ServiceName: "banyan"}, "test", slog.Default())
	if err != nil {
		t.Fatalf("InitTracer failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown returned %v", err)
	}
}
