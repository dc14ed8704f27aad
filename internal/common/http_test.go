package common

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.1.1.1:4000"
	require.Equal(t, "10.1.1.1", ClientIP(r))

	r.Header.Set("X-Real-IP", "192.168.0.9")
	require.Equal(t, "192.168.0.9", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	require.Equal(t, "203.0.113.5", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "garbage")
	require.Equal(t, "192.168.0.9", ClientIP(r))
}
