package storeconn

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"

	"pkt.systems/storeconn/location"
)

func TestResolveOTLPTarget(t *testing.T) {
	cases := []struct {
		raw  string
		want otlpTarget
	}{
		{raw: "collector", want: otlpTarget{protocol: "grpc", endpoint: "collector:4317", insecure: true}},
		{raw: "collector:9999", want: otlpTarget{protocol: "grpc", endpoint: "collector:9999", insecure: true}},
		{raw: "grpcs://collector", want: otlpTarget{protocol: "grpc", endpoint: "collector:4317"}},
		{raw: "http://collector/v1/traces/", want: otlpTarget{protocol: "http", endpoint: "collector:4318", path: "/v1/traces", insecure: true}},
		{raw: "https://collector:443", want: otlpTarget{protocol: "http", endpoint: "collector:443"}},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := resolveOTLPTarget(tc.raw)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got != tc.want {
				t.Fatalf("target=%+v want %+v", got, tc.want)
			}
		})
	}
	for _, bad := range []string{"", "ftp://collector"} {
		if _, err := resolveOTLPTarget(bad); err == nil {
			t.Fatalf("expected %q to fail", bad)
		}
	}
}

func TestSetupTelemetryDisabled(t *testing.T) {
	tel, err := SetupTelemetry(context.Background(), TelemetryConfig{}, nil)
	if err != nil || tel != nil {
		t.Fatalf("expected nothing to start, got %v, %v", tel, err)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil shutdown: %v", err)
	}
	if _, err := SetupTelemetry(context.Background(), TelemetryConfig{ProfilingMetrics: true}, nil); err == nil {
		t.Fatalf("expected profiling metrics without listener to fail")
	}
}

func TestSetupTelemetryServesMetrics(t *testing.T) {
	t.Cleanup(func() { otel.SetMeterProvider(noop.NewMeterProvider()) })
	ctx := context.Background()
	tel, err := SetupTelemetry(ctx, TelemetryConfig{
		MetricsListen: "127.0.0.1:0",
		PprofListen:   "127.0.0.1:0",
	}, nil)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	reg, err := NewRegistry(Config{})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if _, err := reg.ConnectCreate(ctx, location.Mem(), nil); err != nil {
		t.Fatalf("connect: %v", err)
	}

	transport := &http.Transport{DisableKeepAlives: true}
	client := &http.Client{Transport: transport}
	get := func(url string) string {
		t.Helper()
		resp, err := client.Get(url)
		if err != nil {
			t.Fatalf("get %s: %v", url, err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read %s: %v", url, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get %s: status %d", url, resp.StatusCode)
		}
		return string(body)
	}
	metrics := get("http://" + tel.MetricsAddr() + "/metrics")
	if !strings.Contains(metrics, "storeconn_connect") {
		t.Fatalf("connect counter missing from /metrics:\n%s", metrics)
	}
	get("http://" + tel.PprofAddr() + "/debug/pprof/")
	transport.CloseIdleConnections()

	reg.Close(ctx)
	if err := tel.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
