package ngrok

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendURL(t *testing.T) {
	cases := map[string]string{
		"127.0.0.1:8087":        "http://127.0.0.1:8087",
		":8087":                 "http://127.0.0.1:8087",
		"http://localhost:9000": "http://localhost:9000",
	}
	for in, want := range cases {
		u, err := backendURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, u.String())
	}

	_, err := backendURL("  ")
	assert.Error(t, err)
}

func TestNilTunnelIsSafe(t *testing.T) {
	var tun *Tunnel
	assert.Empty(t, tun.URL())
	assert.NoError(t, tun.Close())
}
