package shadow

//
// Per-host descriptor table (spec.md §3 "Descriptor", §7 "ErrDescriptorsExhausted")
//

// descriptorTable allocates small integer [Descriptor] values for a
// host's sockets, starting at descriptorBase and never reusing a value
// while its socket is still referenced elsewhere (e.g. from a pending
// [SocketCallbackPayload]).
type descriptorTable struct {
	next    Descriptor
	sockets map[Descriptor]Socket
	limit   int
}

// newDescriptorTable creates an empty table. limit <= 0 means unbounded.
func newDescriptorTable(limit int) *descriptorTable {
	return &descriptorTable{
		next:    descriptorBase,
		sockets: map[Descriptor]Socket{},
		limit:   limit,
	}
}

// Allocate reserves a fresh descriptor for sock and returns it, or
// [ErrDescriptorsExhausted] if the host's descriptor limit has been reached.
func (t *descriptorTable) Allocate(sock Socket) (Descriptor, error) {
	if t.limit > 0 && len(t.sockets) >= t.limit {
		return InvalidDescriptor, ErrDescriptorsExhausted
	}
	fd := t.next
	t.next++
	t.sockets[fd] = sock
	return fd, nil
}

// Lookup returns the socket registered under fd, if any.
func (t *descriptorTable) Lookup(fd Descriptor) (Socket, bool) {
	s, ok := t.sockets[fd]
	return s, ok
}

// Release removes fd from the table. Safe to call on an fd that is not present.
func (t *descriptorTable) Release(fd Descriptor) {
	delete(t.sockets, fd)
}

// Len returns the number of live descriptors, for metrics and tests.
func (t *descriptorTable) Len() int {
	return len(t.sockets)
}
