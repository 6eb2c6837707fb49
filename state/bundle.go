package state

// Bundle is a StateBundle: a role-name (conventionally "actual" /
// "desired") -> State map passed between Processes. The nil/empty
// Bundle{} is a first-class value used for state-isolated dispatch
// (spec.md §3).
type Bundle map[string]State

// Get returns the State stored under role, if any.
func (b Bundle) Get(role string) (State, bool) {
	s, ok := b[role]
	return s, ok
}

// With returns a new Bundle with role set to s; the receiver is
// unchanged.
func (b Bundle) With(role string, s State) Bundle {
	next := make(Bundle, len(b)+1)
	for k, v := range b {
		next[k] = v
	}
	next[role] = s
	return next
}

// Clone returns a shallow copy (States within are already immutable
// values, so a shallow map copy is a full logical copy).
func (b Bundle) Clone() Bundle {
	next := make(Bundle, len(b))
	for k, v := range b {
		next[k] = v
	}
	return next
}
