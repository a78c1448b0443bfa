package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestInitTracer(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "host and port",
			cfg:  Config{ServiceName: "recipebook-gateway", ServiceVersion: "1.0.0", Endpoint: "localhost:4318"},
		},
		{
			name: "full URL",
			cfg:  Config{ServiceName: "recipebook-gateway", Endpoint: "http://localhost:4318"},
		},
		{
			name: "defaults",
			cfg:  Config{},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			tp, err := InitTracer(ctx, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("InitTracer() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if tp != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := Shutdown(shutdownCtx, tp); err != nil {
					t.Errorf("Shutdown() error = %v", err)
				}
			}
		})
	}
}

func TestExporterOptions(t *testing.T) {
	if got := len(exporterOptions("collector:4318")); got != 2 {
		t.Errorf("Expected endpoint and insecure options, got %d", got)
	}
	if got := len(exporterOptions("https://collector:4318")); got != 1 {
		t.Errorf("Expected a single URL option, got %d", got)
	}
}

func TestShutdown(t *testing.T) {
	if err := Shutdown(context.Background(), nil); err != nil {
		t.Errorf("Shutdown() with nil provider should not error, got: %v", err)
	}
}
