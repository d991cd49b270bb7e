package shadow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func twoHostTopology(t *testing.T, lc LinkConfig) (*Topology, HostConfig, HostConfig) {
	t.Helper()
	client := HostConfig{Name: "client", Address: ParseIP("10.0.0.2"), CPUThreshold: -1, BandwidthUp: 1 << 24, BandwidthDown: 1 << 24}
	server := HostConfig{Name: "server", Address: ParseIP("10.0.0.1"), CPUThreshold: -1, BandwidthUp: 1 << 24, BandwidthDown: 1 << 24}
	topo, err := NewPointToPointTopology(client, server, lc)
	require.NoError(t, err)
	return topo, client, server
}

// TestEngineRunQuiescesWithNoTraffic covers spec.md §8's "empty queues"
// termination path: a topology with no scheduled traffic must terminate
// on its own rather than spin forever.
func TestEngineRunQuiescesWithNoTraffic(t *testing.T) {
	topo, _, _ := twoHostTopology(t, LinkConfig{Latency: 10 * Millisecond})
	eng, err := NewEngine(topo, EngineConfig{Workers: 2, MinRunahead: 10 * Millisecond, KillTime: SimTimeInvalid})
	require.NoError(t, err)
	require.NoError(t, eng.Run(context.Background()))
}

// TestEngineUDPEcho drives a two-host topology through a full UDP
// send/receive/echo round trip across the conservative scheduler,
// matching spec.md §8 scenario (a).
func TestEngineUDPEcho(t *testing.T) {
	topo, clientCfg, serverCfg := twoHostTopology(t, LinkConfig{Latency: 10 * Millisecond})
	eng, err := NewEngine(topo, EngineConfig{Workers: 2, MinRunahead: 10 * Millisecond, KillTime: 2 * Second})
	require.NoError(t, err)

	clientID, ok := eng.routes.HostIDFor(clientCfg.Address)
	require.True(t, ok)
	serverID, ok := eng.routes.HostIDFor(serverCfg.Address)
	require.True(t, ok)

	client, ok := eng.Host(clientID)
	require.True(t, ok)
	server, ok := eng.Host(serverID)
	require.True(t, ok)

	serverFD, err := server.NewUDPSocket()
	require.NoError(t, err)
	_, err = server.BindUDP(serverFD, 7)
	require.NoError(t, err)

	var echoed string
	server.OnUDPReadable(serverFD, func(now SimTime) {
		payload, from, ok := server.RecvFromUDP(serverFD)
		require.True(t, ok)
		require.NoError(t, server.SendToUDP(serverFD, from.SourceIP, from.SourcePort, payload))
	})

	clientFD, err := client.NewUDPSocket()
	require.NoError(t, err)
	client.OnUDPReadable(clientFD, func(now SimTime) {
		payload, _, ok := client.RecvFromUDP(clientFD)
		require.True(t, ok)
		echoed = string(payload)
	})
	require.NoError(t, client.SendToUDP(clientFD, serverCfg.Address, 7, []byte("hello")))

	require.NoError(t, eng.Run(context.Background()))
	require.Equal(t, "hello", echoed)
}

// TestTopologyValidateRejectsLowLatencyLink covers spec.md §4.8 / scenario
// (f): a link latency below the configured runahead is a fatal
// configuration error raised at setup, before the engine ever runs.
func TestTopologyValidateRejectsLowLatencyLink(t *testing.T) {
	topo, _, _ := twoHostTopology(t, LinkConfig{Latency: 1 * Millisecond})
	_, err := NewEngine(topo, EngineConfig{Workers: 1, MinRunahead: 10 * Millisecond})
	require.ErrorIs(t, err, ErrRunaheadViolation)
}

// TestEngineKillEventStopsHost covers spec.md §5's kill-time termination:
// once KillTime is reached every host must stop even with no other
// traffic scheduled.
func TestEngineKillEventStopsHost(t *testing.T) {
	topo, _, _ := twoHostTopology(t, LinkConfig{Latency: 10 * Millisecond})
	eng, err := NewEngine(topo, EngineConfig{Workers: 1, MinRunahead: 10 * Millisecond, KillTime: 100 * Millisecond})
	require.NoError(t, err)
	require.NoError(t, eng.Run(context.Background()))
	for _, h := range eng.Hosts() {
		require.True(t, h.IsKilled())
	}
}
