package shadow

//
// Error kinds (spec.md §7)
//

import (
	"errors"
	"fmt"
)

// Sentinel errors identifying each error kind from spec.md §7. Use
// errors.Is against these to classify an error returned by the engine
// or by a socket operation.
var (
	// ErrConfiguration marks a configuration error: bad topology, a link
	// latency below the configured runahead, conflicting options. Fatal
	// at setup.
	ErrConfiguration = errors.New("shadow: configuration error")

	// ErrResource marks a resource error: out of descriptors, socket
	// buffer full. Surfaced to the guest as a typed failure.
	ErrResource = errors.New("shadow: resource error")

	// ErrProtocol marks a protocol error: operation on a socket in the
	// wrong state, bind conflict. Surfaced to the guest as a typed failure.
	ErrProtocol = errors.New("shadow: protocol error")

	// ErrTimeout marks a timeout: the TCP retransmission cap was
	// exceeded and the connection was reset.
	ErrTimeout = errors.New("shadow: timeout error")

	// ErrInvariant marks a structural invariant failure: an event from
	// the past, an unknown host id, a duplicate sequence. Fatal; aborts
	// the run with a diagnostic.
	ErrInvariant = errors.New("shadow: invariant error")
)

// ConfigurationError wraps ErrConfiguration with context.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("shadow: configuration error: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// NewConfigurationError creates a new [ConfigurationError].
func NewConfigurationError(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// ResourceError wraps ErrResource with context.
type ResourceError struct {
	Reason string
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("shadow: resource error: %s", e.Reason)
}

func (e *ResourceError) Unwrap() error {
	return ErrResource
}

// NewResourceError creates a new [ResourceError].
func NewResourceError(format string, args ...any) error {
	return &ResourceError{Reason: fmt.Sprintf(format, args...)}
}

// ProtocolError wraps ErrProtocol with context.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("shadow: protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}

// NewProtocolError creates a new [ProtocolError].
func NewProtocolError(format string, args ...any) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}

// TimeoutError wraps ErrTimeout with context.
type TimeoutError struct {
	Reason string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("shadow: timeout error: %s", e.Reason)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// NewTimeoutError creates a new [TimeoutError].
func NewTimeoutError(format string, args ...any) error {
	return &TimeoutError{Reason: fmt.Sprintf(format, args...)}
}

// InvariantError wraps ErrInvariant with context. Constructing one of
// these and returning it up to the [Engine] always aborts the run.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("shadow: invariant violation: %s", e.Reason)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariant
}

// NewInvariantError creates a new [InvariantError].
func NewInvariantError(format string, args ...any) error {
	return &InvariantError{Reason: fmt.Sprintf(format, args...)}
}

// Well-known sentinels returned by socket- and NIC-level operations.
var (
	// ErrSocketWrongState indicates an operation was attempted on a
	// socket in a state that does not permit it (e.g., send() on a
	// LISTEN socket).
	ErrSocketWrongState = fmt.Errorf("%w: socket in wrong state", ErrProtocol)

	// ErrSocketNotConnected indicates an operation required a connected
	// socket.
	ErrSocketNotConnected = fmt.Errorf("%w: socket not connected", ErrProtocol)

	// ErrBindConflict indicates the requested local address/port is
	// already bound on this host.
	ErrBindConflict = fmt.Errorf("%w: address already in use", ErrProtocol)

	// ErrNoBufferSpace indicates a send or receive buffer is full.
	ErrNoBufferSpace = fmt.Errorf("%w: no buffer space available", ErrResource)

	// ErrDescriptorsExhausted indicates a host ran out of descriptors.
	ErrDescriptorsExhausted = fmt.Errorf("%w: descriptor table exhausted", ErrResource)

	// ErrConnectionReset indicates the peer reset the connection with an
	// RST. It wraps ErrTimeout, so errors.Is(err, ErrTimeout) also holds.
	// Exceeding the retransmission cap is reported with a [TimeoutError]
	// instead.
	ErrConnectionReset = fmt.Errorf("%w: connection reset", ErrTimeout)

	// ErrRunaheadViolation indicates a link's latency is smaller than
	// the configured conservative window (spec.md §4.8 and scenario (f)).
	ErrRunaheadViolation = fmt.Errorf("%w: link latency below runahead", ErrConfiguration)
)
