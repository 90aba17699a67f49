package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/audiobridge-go/internal/codec"
)

func TestSenderToReceiverLoopback(t *testing.T) {
	defer goleak.VerifyNone(t)

	recv, err := NewUDPReceiver("127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		payloads [][]byte
	)
	ctx, cancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- recv.Serve(ctx, func(payload []byte) error {
			mu.Lock()
			payloads = append(payloads, payload)
			mu.Unlock()
			return nil
		})
	}()

	sender, err := NewUDPSender(recv.LocalAddr().String())
	require.NoError(t, err)
	defer sender.Close()

	require.NoError(t, sender.SendPacket(codec.CompressedPacket{Bytes: []byte{1, 2, 3}}))
	// A missed packet travels as an empty datagram to keep the peer's
	// cadence advancing.
	require.NoError(t, sender.SendPacket(codec.CompressedPacket{Missed: true}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(payloads) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, []byte{1, 2, 3}, payloads[0])
	assert.Empty(t, payloads[1])
	mu.Unlock()

	cancel()
	select {
	case err := <-serveDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeStopsOnHandlerError(t *testing.T) {
	defer goleak.VerifyNone(t)

	recv, err := NewUDPReceiver("127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- recv.Serve(ctx, func(payload []byte) error {
			return assert.AnError
		})
	}()

	sender, err := NewUDPSender(recv.LocalAddr().String())
	require.NoError(t, err)
	defer sender.Close()

	require.NoError(t, sender.SendPacket(codec.CompressedPacket{Bytes: []byte{7}}))

	select {
	case err := <-serveDone:
		assert.ErrorIs(t, err, assert.AnError)
	case <-time.After(time.Second):
		t.Fatal("Serve did not surface the handler error")
	}
	// Serve's ctx watcher exits once the context is canceled.
	cancel()
	time.Sleep(10 * time.Millisecond)
}

func TestSenderRejectsBadAddress(t *testing.T) {
	_, err := NewUDPSender("not-an-address:::")
	assert.Error(t, err)
}
