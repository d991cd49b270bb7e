package shadow_test

import (
	"context"

	apexlog "github.com/apex/log"

	"github.com/shadowsim/shadow"
)

// This example wires apex/log's default logger straight into the engine:
// shadow.Logger's method set is a subset of apex/log's Interface, so
// apexlog.Log satisfies it with no adapter.
func Example_apexLogger() {
	client := shadow.HostConfig{Name: "client", Address: shadow.ParseIP("10.0.0.2"), CPUThreshold: -1, BandwidthUp: 1 << 20, BandwidthDown: 1 << 20}
	server := shadow.HostConfig{Name: "server", Address: shadow.ParseIP("10.0.0.1"), CPUThreshold: -1, BandwidthUp: 1 << 20, BandwidthDown: 1 << 20}

	topo, err := shadow.NewPointToPointTopology(client, server, shadow.LinkConfig{Latency: 10 * shadow.Millisecond})
	if err != nil {
		panic(err)
	}

	eng, err := shadow.NewEngine(topo, shadow.EngineConfig{
		Workers:     1,
		MinRunahead: 10 * shadow.Millisecond,
		KillTime:    100 * shadow.Millisecond,
		Log:         apexlog.Log,
	})
	if err != nil {
		panic(err)
	}

	if err := eng.Run(context.Background()); err != nil {
		panic(err)
	}
}
