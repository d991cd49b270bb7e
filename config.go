package shadow

//
// Engine configuration defaults (spec.md §6 "External Interfaces": CLI
// flags and their defaults)
//

// DefaultEngineConfig returns the engine defaults used before a topology
// document or the CLI overrides them: seed 0, a single worker, a 10ms
// runahead, no kill time, and an unbounded descriptor table. (The CLI's
// own defaults differ for seed and workers: --seed 1, --workers 0 = one
// per core.)
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Seed:                  0,
		Workers:               1,
		MinRunahead:           10 * Millisecond,
		KillTime:              SimTimeInvalid,
		MaxDescriptorsPerHost: 0,
		Log:                   DiscardLogger,
	}
}

// CPULevelOptions configures the CPU-delay accumulator default applied
// to hosts whose topology entry does not override it (spec.md §6
// --cpu-threshold, --cpu-precision; SPEC_FULL.md §8).
type CPULevelOptions struct {
	ThresholdNanos int64
	PrecisionNanos SimTime
}

// DefaultCPULevelOptions disables the CPU-delay accumulator, matching
// the "negative threshold disables it" decision in SPEC_FULL.md §8.
func DefaultCPULevelOptions() CPULevelOptions {
	return CPULevelOptions{ThresholdNanos: -1, PrecisionNanos: Microsecond}
}

// InterfaceOptions carries the --interface-batch, --interface-buffer and
// --interface-qdisc values (spec.md §6). Only Qdisc reaches hosts, via
// [ApplyDefaults]; [HostConfig] has no batch-interval or ingress-buffer
// field, so BatchInterval and IngressBufferBytes are not applied and every
// [NIC] uses [DefaultNICConfig]'s values for them.
type InterfaceOptions struct {
	BatchInterval      SimTime
	IngressBufferBytes int
	Qdisc              QdiscKind
}

// DefaultInterfaceOptions mirrors [DefaultNICConfig].
func DefaultInterfaceOptions() InterfaceOptions {
	d := DefaultNICConfig()
	return InterfaceOptions{
		BatchInterval:      d.BatchInterval,
		IngressBufferBytes: d.IngressBufferBytes,
		Qdisc:              d.Qdisc,
	}
}

// SocketOptions configures default TCP socket buffer sizes (spec.md §6
// --socket-recv-buffer, --socket-send-buffer; 0 means autotune) and the
// initial congestion window (--tcp-windows).
type SocketOptions struct {
	RecvBuffer            int
	SendBuffer            int
	InitialWindowSegments int
}

// DefaultSocketOptions enables autotuning for both buffers and uses
// RFC 6928's 10-segment initial window.
func DefaultSocketOptions() SocketOptions {
	return SocketOptions{RecvBuffer: 0, SendBuffer: 0, InitialWindowSegments: 10}
}

// HeartbeatOptions configures per-host heartbeat reporting (spec.md §6
// --heartbeat-frequency, --heartbeat-log-level). Only Interval reaches
// hosts, via [ApplyDefaults]; LogLevel is carried but not read, and
// heartbeat lines are always logged with Infof.
type HeartbeatOptions struct {
	Interval SimTime
	LogLevel string
}

// DefaultHeartbeatOptions disables heartbeat reporting (Interval == 0).
func DefaultHeartbeatOptions() HeartbeatOptions {
	return HeartbeatOptions{Interval: 0, LogLevel: "info"}
}

// ApplyDefaults fills in any zero-valued field of cfg using the options
// computed for this run, the way spec.md §6 describes per-host
// topology entries falling back to engine-wide CLI defaults.
func ApplyDefaults(cfg HostConfig, iface InterfaceOptions, sock SocketOptions, cpu CPULevelOptions, hb HeartbeatOptions) HostConfig {
	if cfg.Qdisc == 0 && iface.Qdisc != 0 {
		cfg.Qdisc = iface.Qdisc
	}
	if cfg.SocketRecvBuffer == 0 {
		cfg.SocketRecvBuffer = sock.RecvBuffer
	}
	if cfg.SocketSendBuffer == 0 {
		cfg.SocketSendBuffer = sock.SendBuffer
	}
	if cfg.TCPInitialWindowSegments == 0 {
		cfg.TCPInitialWindowSegments = sock.InitialWindowSegments
	}
	if cfg.CPUThreshold == 0 {
		cfg.CPUThreshold = cpu.ThresholdNanos
	}
	if cfg.CPUPrecision == 0 {
		cfg.CPUPrecision = cpu.PrecisionNanos
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = hb.Interval
	}
	return cfg
}
