package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization = Bearer abc ,broken,=novalue, x-tenant=bill ")
	require.Equal(t, map[string]string{
		"authorization": "Bearer abc",
		"x-tenant":      "bill",
	}, headers)
	require.Empty(t, ParseHeaders(""))
}

func TestInitDisabledIsNoop(t *testing.T) {
	cfg := Config{ServiceName: "billd", Traces: true}
	require.False(t, cfg.Enabled())

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{Endpoint: "localhost:4318", Traces: true})
	require.Error(t, err)
}
