// Command shadow runs a discrete-event network simulation described by a
// topology file, driving it to completion or to its configured kill time
// (spec.md §6 "External Interfaces").
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/shadowsim/shadow"
	"github.com/shadowsim/shadow/internal/topologyconfig"
)

// qdiscFlag adapts [shadow.QdiscKind] to [pflag.Value], so --interface-qdisc
// is validated at flag-parse time instead of silently falling back to
// fifo on an unrecognized value.
type qdiscFlag struct {
	kind shadow.QdiscKind
}

var _ pflag.Value = (*qdiscFlag)(nil)

func (f *qdiscFlag) String() string {
	if f.kind == shadow.QdiscRoundRobin {
		return "rr"
	}
	return "fifo"
}

func (f *qdiscFlag) Set(s string) error {
	switch s {
	case "fifo":
		f.kind = shadow.QdiscFIFO
	case "rr":
		f.kind = shadow.QdiscRoundRobin
	default:
		return fmt.Errorf("must be one of fifo, rr, got %q", s)
	}
	return nil
}

func (f *qdiscFlag) Type() string { return "qdisc" }

// version is overridden at build time via -ldflags, matching the
// teacher's calibrate/throttle build convention.
var version = "dev"

type cliFlags struct {
	topologyPath string

	logLevel           string
	heartbeatLogLevel  string
	heartbeatLogInfo   string
	heartbeatFrequency int

	seed    uint64
	workers int

	cpuThresholdMicros int64
	cpuPrecisionMicros int64

	interfaceBatchMillis int64
	interfaceBuffer      string
	interfaceQdisc       qdiscFlag

	runaheadMillis int64

	tcpWindows int

	socketRecvBuffer string
	socketSendBuffer string

	latencySampleIntervalSeconds int
}

func main() {
	flags := &cliFlags{}

	cmd := &cobra.Command{
		Use:     "shadow",
		Short:   "Run a discrete-event network simulation",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.topologyPath, "topology", "", "path to a topology YAML file (required)")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "message", "log level: debug|info|message|warning|error")
	cmd.Flags().StringVar(&flags.heartbeatLogLevel, "heartbeat-log-level", "info", "log level for heartbeat reports (accepted but not applied: heartbeats are logged at info)")
	cmd.Flags().StringVar(&flags.heartbeatLogInfo, "heartbeat-log-info", "node", "comma-separated heartbeat fields (accepted but not applied: heartbeats always list host, time, fds and tcp_conns)")
	cmd.Flags().IntVar(&flags.heartbeatFrequency, "heartbeat-frequency", 60, "seconds between heartbeat reports (0 disables)")
	cmd.Flags().Uint64Var(&flags.seed, "seed", 1, "deterministic global seed")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "worker count (0 = one per core)")
	cmd.Flags().Int64Var(&flags.cpuThresholdMicros, "cpu-threshold", 1000, "microseconds of accrued CPU work before delay is charged (negative disables)")
	cmd.Flags().Int64Var(&flags.cpuPrecisionMicros, "cpu-precision", 200, "microseconds of rounding precision for charged CPU delay")
	cmd.Flags().Int64Var(&flags.interfaceBatchMillis, "interface-batch", 10, "milliseconds between NIC token-bucket refills (accepted but not applied: every NIC uses 10ms)")
	cmd.Flags().StringVar(&flags.interfaceBuffer, "interface-buffer", "1MB", "NIC ingress buffer size (accepted but not applied: every NIC uses 1 MiB)")
	cmd.Flags().Var(&flags.interfaceQdisc, "interface-qdisc", "NIC egress queuing discipline: fifo|rr")
	cmd.Flags().Int64Var(&flags.runaheadMillis, "runahead", 10, "milliseconds of conservative synchronization runahead")
	cmd.Flags().IntVar(&flags.tcpWindows, "tcp-windows", 10, "initial TCP congestion window, in MSS-sized segments")
	cmd.Flags().StringVar(&flags.socketRecvBuffer, "socket-recv-buffer", "0", "TCP receive buffer size (0 autotunes, else 174760 is typical)")
	cmd.Flags().StringVar(&flags.socketSendBuffer, "socket-send-buffer", "0", "TCP send buffer size (0 autotunes, else 131072 is typical)")
	cmd.Flags().IntVar(&flags.latencySampleIntervalSeconds, "latency-sample-interval", 1, "seconds between latency samples (accepted but not applied: heartbeats carry no latency samples)")

	if err := cmd.Execute(); err != nil {
		if errors.Is(err, shadow.ErrConfiguration) || errors.Is(err, shadow.ErrInvariant) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}

func run(ctx context.Context, flags *cliFlags) error {
	if flags.topologyPath == "" {
		return shadow.NewConfigurationError("--topology is required")
	}

	logger, err := newZapLogger(flags.logLevel)
	if err != nil {
		return shadow.NewConfigurationError("--log-level: %s", err.Error())
	}

	ingressBuffer, err := parseSize(flags.interfaceBuffer)
	if err != nil {
		return shadow.NewConfigurationError("--interface-buffer: %s", err.Error())
	}
	recvBuffer, err := parseSize(flags.socketRecvBuffer)
	if err != nil {
		return shadow.NewConfigurationError("--socket-recv-buffer: %s", err.Error())
	}
	sendBuffer, err := parseSize(flags.socketSendBuffer)
	if err != nil {
		return shadow.NewConfigurationError("--socket-send-buffer: %s", err.Error())
	}

	defaults := topologyconfig.Defaults{
		Interface: shadow.InterfaceOptions{
			BatchInterval:      shadow.SimTime(flags.interfaceBatchMillis) * shadow.Millisecond,
			IngressBufferBytes: ingressBuffer,
			Qdisc:              flags.interfaceQdisc.kind,
		},
		Socket: shadow.SocketOptions{
			RecvBuffer:            recvBuffer,
			SendBuffer:            sendBuffer,
			InitialWindowSegments: flags.tcpWindows,
		},
		CPU: shadow.CPULevelOptions{
			ThresholdNanos: flags.cpuThresholdMicros * int64(shadow.Microsecond),
			PrecisionNanos: shadow.SimTime(flags.cpuPrecisionMicros) * shadow.Microsecond,
		},
		Heartbeat: shadow.HeartbeatOptions{
			Interval: shadow.SimTime(flags.heartbeatFrequency) * shadow.Second,
			LogLevel: flags.heartbeatLogLevel,
		},
	}

	topo, cfg, err := topologyconfig.Load(flags.topologyPath, defaults)
	if err != nil {
		return err
	}

	cfg.Log = logger
	cfg.Seed = flags.seed
	cfg.Workers = flags.workers
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	cfg.MinRunahead = shadow.SimTime(flags.runaheadMillis) * shadow.Millisecond

	engine, err := shadow.NewEngine(topo, cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := engine.Run(ctx); err != nil {
		logger.Errorf("shadow: run failed: %s", err.Error())
		return err
	}
	return nil
}

func parseSize(s string) (int, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	var v datasize.ByteSize
	if err := v.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return int(v.Bytes()), nil
}
