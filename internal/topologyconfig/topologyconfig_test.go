package topologyconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shadowsim/shadow"
)

const sampleYAML = `
seed: 7
workers: 2
runahead: 10ms
kill_time: 5s
clusters:
  client: {bandwidth_down: 1000000, bandwidth_up: 1000000}
  server: {bandwidth_down: 1000000, bandwidth_up: 1000000}
hosts:
  - name: client
    address: 10.0.0.2
    cluster: client
  - name: server
    address: 10.0.0.1
    cluster: server
    qdisc: rr
links:
  - source: client
    dest: server
    latency: 50ms
    packet_loss: 0.01
  - source: server
    dest: client
    latency: 50ms
`

func writeTempFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesHostsClustersAndLinks(t *testing.T) {
	path := writeTempFile(t, sampleYAML)

	topo, cfg, err := Load(path, Defaults{
		Socket: shadow.DefaultSocketOptions(),
		CPU:    shadow.DefaultCPULevelOptions(),
	})
	require.NoError(t, err)

	require.Equal(t, uint64(7), cfg.Seed)
	require.Equal(t, 2, cfg.Workers)
	require.Equal(t, 10*shadow.Millisecond, cfg.MinRunahead)
	require.Equal(t, 5*shadow.Second, cfg.KillTime)

	hosts := topo.Hosts()
	require.Len(t, hosts, 2)
	require.Equal(t, "client", hosts[0].Name)
	require.Equal(t, shadow.ParseIP("10.0.0.2"), hosts[0].Address)
	require.Equal(t, shadow.QdiscFIFO, hosts[0].Qdisc)
	require.Equal(t, shadow.QdiscRoundRobin, hosts[1].Qdisc)

	require.NoError(t, topo.Validate(10*shadow.Millisecond))
}

func TestLoadRejectsUnknownAddress(t *testing.T) {
	path := writeTempFile(t, `
hosts:
  - name: bad
    address: not-an-ip
    cluster: x
`)
	_, _, err := Load(path, Defaults{})
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), Defaults{})
	require.Error(t, err)
}

func TestLoadAppliesSocketDefaults(t *testing.T) {
	path := writeTempFile(t, `
hosts:
  - name: solo
    address: 10.0.0.5
    cluster: x
`)
	topo, _, err := Load(path, Defaults{
		Socket: shadow.SocketOptions{RecvBuffer: 4096, SendBuffer: 8192, InitialWindowSegments: 4},
		CPU:    shadow.DefaultCPULevelOptions(),
	})
	require.NoError(t, err)

	hosts := topo.Hosts()
	require.Len(t, hosts, 1)
	require.Equal(t, 4096, hosts[0].SocketRecvBuffer)
	require.Equal(t, 8192, hosts[0].SocketSendBuffer)
	require.Equal(t, 4, hosts[0].TCPInitialWindowSegments)
}
