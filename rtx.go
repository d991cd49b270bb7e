package shadow

// Must0 panics in case of error. Used at setup time, where a config or
// topology error is fatal by construction (see spec.md §7).
func Must0(err error) {
	if err != nil {
		panic(err)
	}
}

// Must1 panics in case of error otherwise returns the first value. Used
// by [ParseIP] to turn a malformed setup-time literal into an immediate
// panic instead of threading an error through every caller.
func Must1[Type any](value Type, err error) Type {
	Must0(err)
	return value
}
