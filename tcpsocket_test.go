package shadow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestEngineTCPEcho drives a two-host topology through a full RFC 793
// handshake, a data round trip, and an active close, matching spec.md §8
// scenario (a)'s TCP case (the UDP echo in engine_test.go covers the UDP
// half of that scenario).
func TestEngineTCPEcho(t *testing.T) {
	topo, clientCfg, serverCfg := twoHostTopology(t, LinkConfig{Latency: 10 * Millisecond})
	eng, err := NewEngine(topo, EngineConfig{Workers: 2, MinRunahead: 10 * Millisecond, KillTime: 5 * Second})
	require.NoError(t, err)

	clientID, ok := eng.routes.HostIDFor(clientCfg.Address)
	require.True(t, ok)
	serverID, ok := eng.routes.HostIDFor(serverCfg.Address)
	require.True(t, ok)

	client, ok := eng.Host(clientID)
	require.True(t, ok)
	server, ok := eng.Host(serverID)
	require.True(t, ok)

	listenFD, err := server.NewTCPSocket()
	require.NoError(t, err)
	_, err = server.BindTCP(listenFD, 80)
	require.NoError(t, err)
	require.NoError(t, server.ListenTCP(listenFD, 4))

	server.OnTCPAcceptable(listenFD, func(now SimTime) {
		childFD, ok := server.AcceptTCP(listenFD)
		require.True(t, ok)
		server.OnTCPReadable(childFD, func(now SimTime) {
			payload, ok := server.RecvTCP(childFD, 4096)
			require.True(t, ok)
			_, err := server.SendTCP(childFD, payload)
			require.NoError(t, err)
			require.NoError(t, server.CloseTCP(childFD))
		})
	})

	clientFD, err := client.NewTCPSocket()
	require.NoError(t, err)

	var echoed string
	var echoedAt SimTime
	connectErr := error(nil)
	connected := false

	require.NoError(t, client.ConnectTCP(clientFD, serverCfg.Address, 80, func(now SimTime, err error) {
		connected = true
		connectErr = err
		if err == nil {
			_, sendErr := client.SendTCP(clientFD, []byte("hello-tcp"))
			require.NoError(t, sendErr)
		}
	}))
	client.OnTCPReadable(clientFD, func(now SimTime) {
		payload, ok := client.RecvTCP(clientFD, 4096)
		require.True(t, ok)
		if len(payload) > 0 {
			echoed = string(payload)
			echoedAt = now
			require.NoError(t, client.CloseTCP(clientFD))
		}
	})

	require.NoError(t, eng.Run(context.Background()))

	require.True(t, connected)
	require.NoError(t, connectErr)
	require.Equal(t, "hello-tcp", echoed)
	require.Greater(t, uint64(echoedAt), uint64(0))

	state, ok := client.TCPState(clientFD)
	require.True(t, ok)
	require.NotEqual(t, TCPEstablished, state)
}

// TestTCPRetransmitAbortsAfterRetryCap covers spec.md §7's "timeout (TCP
// retransmission cap exceeded -> reset connection)" error kind and §8
// invariant 5: a segment that can never be acknowledged must eventually
// drive the connection to a reset/closed state rather than retransmit
// forever. The destination address is deliberately unrouted so every
// retransmission is silently lost, the way sustained packet loss would
// behave in the field.
func TestTCPRetransmitAbortsAfterRetryCap(t *testing.T) {
	topo, clientCfg, _ := twoHostTopology(t, LinkConfig{Latency: 10 * Millisecond})
	// RTO backoff is exponential and caps at maxRTO (60s); reaching
	// maxRetransmits consecutive timeouts from a 1s starting RTO takes on
	// the order of ten simulated minutes, so KillTime needs generous
	// headroom above that to let the cap actually fire during the run.
	eng, err := NewEngine(topo, EngineConfig{Workers: 1, MinRunahead: 10 * Millisecond, KillTime: 30 * Minute})
	require.NoError(t, err)

	clientID, ok := eng.routes.HostIDFor(clientCfg.Address)
	require.True(t, ok)
	client, ok := eng.Host(clientID)
	require.True(t, ok)

	fd, err := client.NewTCPSocket()
	require.NoError(t, err)
	sock, ok := client.tcpSocket(fd)
	require.True(t, ok)

	// Fake an established connection to an address with no route, so
	// every segment this socket transmits vanishes instead of eliciting
	// a reply (and never a RST, which would exercise abort's other
	// caller instead of the RTO cap).
	sock.state = TCPEstablished
	sock.localPort = 40000
	sock.remoteIP = ParseIP("10.0.0.250")
	sock.remotePort = 9999
	seq := sock.sndNXT
	sock.sndNXT = seq + 5
	sock.retransmitQueue = append(sock.retransmitQueue, &tcpPendingSegment{
		seq: seq, data: []byte("hello"), flags: TCPFlagACK, sentAt: client.now_,
	})

	var timeoutErr error
	onConnectedCalled := false
	sock.onConnected = func(now SimTime, err error) {
		onConnectedCalled = true
		timeoutErr = err
	}
	sock.scheduleRTOTimer(client.now_)

	require.NoError(t, eng.Run(context.Background()))

	require.True(t, onConnectedCalled)
	require.ErrorIs(t, timeoutErr, ErrTimeout)
	require.Equal(t, TCPClosed, sock.state)
}
