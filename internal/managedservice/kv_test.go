package managedservice

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKVProbeFailsAgainstUnreachableHost(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close() // close immediately: nothing is listening there now

	probe := NewKVProbe("irrelevant")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err = probe(ctx, "127.0.0.1", port)
	assert.Error(t, err)
}

func TestNewKVHandleRequiresReadySupervisor(t *testing.T) {
	s := NewSupervisor(nil, "kv", "temps-kv", KVImage, 6379, 6379, "secret", nil)
	_, err := NewKVHandle(s, "secret")
	assert.Error(t, err)
}
