// Package sampling models the sampling parameters the proxy injects into
// chat-completion requests (temperature, top_p, top_k) and resolves their
// final values from the CLI and config-file inputs.
package sampling

// Param is a tri-state optional scalar: either unset ("no opinion, leave the
// request field alone") or set to a value ("force this value into the
// outgoing request"). A config-file null maps to unset, so there is no
// separate "explicitly removed" state.
//
// The tag is explicit rather than a nil pointer so the unset/set distinction
// survives copying and stays auditable in tests.
type Param[T any] struct {
	value T
	set   bool
}

// Set returns a Param holding v.
func Set[T any](v T) Param[T] {
	return Param[T]{value: v, set: true}
}

// Unset returns a Param with no opinion.
func Unset[T any]() Param[T] {
	return Param[T]{}
}

// Get returns the value and whether it is set.
func (p Param[T]) Get() (T, bool) {
	return p.value, p.set
}

// IsSet reports whether the Param holds a value.
func (p Param[T]) IsSet() bool {
	return p.set
}

// Or returns p if set, otherwise fallback. This is the field-wise precedence
// primitive used by Resolve.
func (p Param[T]) Or(fallback Param[T]) Param[T] {
	if p.set {
		return p
	}
	return fallback
}
