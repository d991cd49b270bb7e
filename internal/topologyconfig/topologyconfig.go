// Package topologyconfig loads a [shadow.Topology] from a YAML document
// (SPEC_FULL.md §6: an optional declarative topology format alongside the
// Go-native NewPointToPointTopology/NewStarTopology constructors). It is a
// thin, fallible front end: every error it returns wraps
// [shadow.ErrConfiguration], matching spec.md §7's "bad topology is a
// fatal configuration error" rule.
package topologyconfig

import (
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shadowsim/shadow"
)

// Document is the top-level shape of a topology YAML file.
type Document struct {
	Seed     uint64             `yaml:"seed"`
	Workers  int                `yaml:"workers"`
	Runahead string             `yaml:"runahead"`
	KillTime string             `yaml:"kill_time"`
	Clusters map[string]Cluster `yaml:"clusters"`
	Hosts    []Host             `yaml:"hosts"`
	Links    []LinkSpec         `yaml:"links"`
}

// Cluster mirrors [shadow.ClusterConfig].
type Cluster struct {
	BandwidthDown uint64  `yaml:"bandwidth_down"`
	BandwidthUp   uint64  `yaml:"bandwidth_up"`
	PacketLoss    float64 `yaml:"packet_loss"`
}

// Host mirrors [shadow.HostConfig].
type Host struct {
	Name              string `yaml:"name"`
	Address           string `yaml:"address"`
	Cluster           string `yaml:"cluster"`
	BandwidthUp       uint64 `yaml:"bandwidth_up"`
	BandwidthDown     uint64 `yaml:"bandwidth_down"`
	CPUFrequencyHz    uint64 `yaml:"cpu_frequency_hz"`
	CPUThreshold      int64  `yaml:"cpu_threshold"`
	CPUPrecision      string `yaml:"cpu_precision"`
	HeartbeatInterval string `yaml:"heartbeat_interval"`
	SocketRecvBuffer  int    `yaml:"socket_recv_buffer"`
	SocketSendBuffer  int    `yaml:"socket_send_buffer"`
	Qdisc             string `yaml:"qdisc"`
	PCAPFile          string `yaml:"pcap"`
}

// LinkSpec mirrors [shadow.LinkConfig] plus the two cluster endpoints it
// connects.
type LinkSpec struct {
	Source     string  `yaml:"source"`
	Dest       string  `yaml:"dest"`
	Latency    string  `yaml:"latency"`
	PacketLoss float64 `yaml:"packet_loss"`
}

// Defaults bundles the CLI-derived per-host fallbacks applied to any host
// entry that leaves the corresponding field at its zero value (spec.md §6:
// per-host topology entries fall back to engine-wide CLI defaults).
type Defaults struct {
	Interface shadow.InterfaceOptions
	Socket    shadow.SocketOptions
	CPU       shadow.CPULevelOptions
	Heartbeat shadow.HeartbeatOptions
}

// Load reads and parses a topology document from path, returning the
// compiled [shadow.Topology] and the engine-wide options the document
// requested. Unknown fields are accepted and ignored by yaml.v3's default
// decode behavior: an unrecognized attribute is a warning-worthy surprise,
// never a fatal error (SPEC_FULL.md open question).
func Load(path string, defaults Defaults) (*shadow.Topology, shadow.EngineConfig, error) {
	cfg := shadow.DefaultEngineConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, cfg, shadow.NewConfigurationError("topologyconfig: %s", err.Error())
	}

	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, cfg, shadow.NewConfigurationError("topologyconfig: %s", err.Error())
	}

	if doc.Seed != 0 {
		cfg.Seed = doc.Seed
	}
	if doc.Workers > 0 {
		cfg.Workers = doc.Workers
	}
	if doc.Runahead != "" {
		d, err := parseDuration(doc.Runahead)
		if err != nil {
			return nil, cfg, err
		}
		cfg.MinRunahead = d
	}
	if doc.KillTime != "" {
		d, err := parseDuration(doc.KillTime)
		if err != nil {
			return nil, cfg, err
		}
		cfg.KillTime = d
	}

	topo := shadow.NewTopology()
	for id, c := range doc.Clusters {
		topo.AddCluster(shadow.ClusterID(id), shadow.ClusterConfig{
			BandwidthDown: c.BandwidthDown,
			BandwidthUp:   c.BandwidthUp,
			PacketLoss:    c.PacketLoss,
		})
	}

	for _, h := range doc.Hosts {
		addr, err := parseIPv4(h.Address)
		if err != nil {
			return nil, cfg, err
		}
		precision, err := parseOptionalDuration(h.CPUPrecision, shadow.Microsecond)
		if err != nil {
			return nil, cfg, err
		}
		heartbeat, err := parseOptionalDuration(h.HeartbeatInterval, 0)
		if err != nil {
			return nil, cfg, err
		}
		hc := shadow.HostConfig{
			Name:              h.Name,
			Address:           addr,
			Cluster:           shadow.ClusterID(h.Cluster),
			BandwidthUp:       h.BandwidthUp,
			BandwidthDown:     h.BandwidthDown,
			CPUFrequencyHz:    h.CPUFrequencyHz,
			CPUThreshold:      h.CPUThreshold,
			CPUPrecision:      precision,
			HeartbeatInterval: heartbeat,
			SocketRecvBuffer:  h.SocketRecvBuffer,
			SocketSendBuffer:  h.SocketSendBuffer,
			Qdisc:             parseQdisc(h.Qdisc),
			PCAPFile:          h.PCAPFile,
		}
		hc = shadow.ApplyDefaults(hc, defaults.Interface, defaults.Socket, defaults.CPU, defaults.Heartbeat)
		if err := topo.AddHost(hc); err != nil {
			return nil, cfg, err
		}
	}

	for _, l := range doc.Links {
		latency, err := parseDuration(l.Latency)
		if err != nil {
			return nil, cfg, err
		}
		topo.AddLink(shadow.NewLink(shadow.ClusterID(l.Source), shadow.ClusterID(l.Dest), shadow.LinkConfig{
			Latency:    latency,
			PacketLoss: l.PacketLoss,
		}))
	}

	return topo, cfg, nil
}

func parseQdisc(s string) shadow.QdiscKind {
	if s == "rr" || s == "round-robin" || s == "round_robin" {
		return shadow.QdiscRoundRobin
	}
	return shadow.QdiscFIFO
}

func parseDuration(s string) (shadow.SimTime, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, shadow.NewConfigurationError("topologyconfig: invalid duration %q: %s", s, err.Error())
	}
	if d < 0 {
		return 0, shadow.NewConfigurationError("topologyconfig: negative duration %q", s)
	}
	return shadow.SimTime(d.Nanoseconds()), nil
}

func parseOptionalDuration(s string, fallback shadow.SimTime) (shadow.SimTime, error) {
	if s == "" {
		return fallback, nil
	}
	return parseDuration(s)
}

func parseIPv4(s string) (uint32, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, shadow.NewConfigurationError("topologyconfig: invalid IPv4 address %q", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, shadow.NewConfigurationError("topologyconfig: not an IPv4 address %q", s)
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3]), nil
}
