package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRuntimeFromEnv_DefaultsWhenUnset(t *testing.T) {
	for _, v := range []string{envNATSHost, envNATSPort, envInterfaceMode, envHTTPPort, envWSPort} {
		t.Setenv(v, "")
	}
	rt := RuntimeFromEnv()
	require.Equal(t, DefaultRuntime(), rt)
}

func TestRuntimeFromEnv_OverridesFromEnvironment(t *testing.T) {
	t.Setenv(envNATSHost, "nats.internal")
	t.Setenv(envInterfaceMode, "http")
	t.Setenv(envHTTPPort, "9090")

	rt := RuntimeFromEnv()
	require.Equal(t, "nats.internal", rt.NATSHost)
	require.Equal(t, InterfaceModeHTTP, rt.InterfaceMode)
	require.Equal(t, "9090", rt.HTTPPort)
	require.Equal(t, DefaultRuntime().NATSPort, rt.NATSPort)
}
