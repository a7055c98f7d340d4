package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOtlpTransport(t *testing.T) {
	require.Equal(t, "", OtlpConnConfig{}.transport())
	require.Equal(t, transportHttp, OtlpConnConfig{HttpEndpoint: "http://localhost:4318/v1/traces"}.transport())
	require.Equal(t, transportGrpc, OtlpConnConfig{GrpcEndpoint: "http://localhost:4317"}.transport())

	both := OtlpConnConfig{GrpcEndpoint: "http://localhost:4317", HttpEndpoint: "http://localhost:4318"}
	require.Equal(t, transportGrpc, both.transport())
	require.Equal(t, "http://localhost:4317", both.endpoint())
}

func TestOtlpExporters(t *testing.T) {
	ctx := context.Background()
	for _, c := range []OtlpConnConfig{
		{GrpcEndpoint: "http://127.0.0.1:4317", Headers: map[string]string{"x-team": "lots"}},
		{HttpEndpoint: "http://127.0.0.1:4318/v1/traces"},
	} {
		spans, err := traceExporter(ctx, c)
		require.NoError(t, err, c.transport())
		require.NoError(t, spans.Shutdown(ctx))

		metrics, err := metricExporter(ctx, c)
		require.NoError(t, err, c.transport())
		require.NoError(t, metrics.Shutdown(ctx))
	}
}

func TestSetupOtelSkipsEmptyConfig(t *testing.T) {
	o, err := SetupOtel(context.Background(), "lotwatch", OtlpConfig{})
	require.NoError(t, err)
	require.Nil(t, o.TracerProvider)
	require.Nil(t, o.MeterProvider)
	require.NoError(t, o.Shutdown(context.Background()))
}
