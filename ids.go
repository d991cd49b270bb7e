package shadow

//
// Stable identifiers used to avoid pointer cycles in the host <-> socket
// <-> NIC <-> host object graph (spec.md §9 "Cyclic object graphs"):
// hosts are referenced by id from events and timers, never by pointer.
//

import "fmt"

// HostID uniquely identifies a [Host] within an [Engine]. Host ids are
// assigned sequentially at topology-build time and never reused.
type HostID uint32

// InvalidHostID is never assigned to a real host.
const InvalidHostID = HostID(0)

func (id HostID) String() string {
	return fmt.Sprintf("host#%d", uint32(id))
}

// Descriptor is a small integer identifying a socket or pipe within a
// host. Descriptors start at descriptorBase (spec.md §3), chosen above the
// OS file-descriptor range so simulated descriptors never alias a guest's
// real OS fds when both appear in the same log or trace.
type Descriptor int64

// descriptorBase is the first descriptor value a host ever hands out.
const descriptorBase Descriptor = 1_000_000

// InvalidDescriptor is never a valid descriptor.
const InvalidDescriptor Descriptor = -1

func (d Descriptor) String() string {
	return fmt.Sprintf("fd#%d", int64(d))
}
