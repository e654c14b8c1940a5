//go:build e2e

package e2e

import (
	"context"
	"io"
	"net"
	"os"
	"testing"
	"time"

	"github.com/fgeck/homelab-remote/internal/models"
	"github.com/fgeck/homelab-remote/internal/services/wol"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestWOL_WithTCPTarget_E2E(t *testing.T) {
	// A local listener acts as the target's sshd
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	svc := wol.NewWithClients(testLogger(), &mockWOLClient{}, &net.Dialer{Timeout: time.Second})

	cfg := models.WOLConfig{
		MACAddress:    "AA:BB:CC:DD:EE:FF",
		BroadcastIP:   "255.255.255.255",
		PollAddr:      ln.Addr().String(),
		Timeout:       5 * time.Second,
		PollInterval:  100 * time.Millisecond,
		StabilizeWait: 100 * time.Millisecond,
	}

	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)
	assert.GreaterOrEqual(t, result.WaitDuration, 100*time.Millisecond)
}

func TestWOL_DelayedTarget_E2E(t *testing.T) {
	// Reserve a port, release it, and start listening on it later
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	started := make(chan net.Listener, 1)
	go func() {
		time.Sleep(300 * time.Millisecond)
		late, err := net.Listen("tcp", addr)
		if err != nil {
			close(started)
			return
		}
		started <- late
		for {
			conn, err := late.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	defer func() {
		if late, ok := <-started; ok {
			_ = late.Close()
		}
	}()

	svc := wol.NewWithClients(testLogger(), &mockWOLClient{}, &net.Dialer{Timeout: time.Second})

	cfg := models.WOLConfig{
		MACAddress:   "AA:BB:CC:DD:EE:FF",
		BroadcastIP:  "255.255.255.255",
		PollAddr:     addr,
		Timeout:      5 * time.Second,
		PollInterval: 50 * time.Millisecond,
	}

	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
	assert.GreaterOrEqual(t, result.WaitDuration, 300*time.Millisecond)
}

func TestWOL_TargetNeverReady_E2E(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	svc := wol.NewWithClients(testLogger(), &mockWOLClient{}, &net.Dialer{Timeout: 50 * time.Millisecond})

	cfg := models.WOLConfig{
		MACAddress:   "AA:BB:CC:DD:EE:FF",
		BroadcastIP:  "255.255.255.255",
		PollAddr:     addr,
		Timeout:      200 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
	}

	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.False(t, result.TargetReady)
	require.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Error(), "timeout")
}

// Mock implementations for E2E tests
type mockWOLClient struct{}

func (m *mockWOLClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	return nil
}

// RealWOL tests - only run if explicitly configured
func TestRealWOL_E2E(t *testing.T) {
	mac := os.Getenv("TEST_WOL_MAC")
	if mac == "" {
		t.Skip("TEST_WOL_MAC not set")
	}

	pollAddr := os.Getenv("TEST_WOL_POLL_ADDR")

	svc := wol.New(testLogger())

	cfg := models.WOLConfig{
		MACAddress:    mac,
		BroadcastIP:   "255.255.255.255",
		PollAddr:      pollAddr,
		Timeout:       5 * time.Minute,
		PollInterval:  10 * time.Second,
		StabilizeWait: 10 * time.Second,
	}

	result, err := svc.Wake(context.Background(), cfg)

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	if pollAddr != "" {
		assert.True(t, result.TargetReady)
	}
}
