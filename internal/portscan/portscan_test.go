package portscan

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInUseDetectsBoundPort(t *testing.T) {
	l, err := net.Listen("tcp4", "0.0.0.0:0")
	require.NoError(t, err)
	defer l.Close()

	port := l.Addr().(*net.TCPAddr).Port
	require.True(t, InUse(port))
}

func TestFindAvailableReturnsFreePort(t *testing.T) {
	port, ok := FindAvailable(20000)
	require.True(t, ok)
	require.False(t, InUse(port))
}

func TestFindAvailableSkipsBoundPort(t *testing.T) {
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	bound := l.Addr().(*net.TCPAddr).Port

	port, ok := FindAvailable(bound)
	require.True(t, ok)
	require.NotEqual(t, bound, port)
}
