package pipeline

import (
	"encoding/json"
	"fmt"
)

// Result is the outcome of a stage: either a present value (Ok) or Failed.
// The zero Result is Failed.
type Result[T any] struct {
	value T
	ok    bool
}

// Ok returns a present result holding v.
func Ok[T any](v T) Result[T] { return Result[T]{value: v, ok: true} }

// Failed returns an absent result.
func Failed[T any]() Result[T] { return Result[T]{} }

// OK reports whether the result is present.
func (r Result[T]) OK() bool { return r.ok }

// Get returns the value and whether it is present.
func (r Result[T]) Get() (T, bool) { return r.value, r.ok }

// Value returns the value, or the zero value of T when the result is absent.
// Use it inside a stage guarded by Step.Needs, where presence is already known.
func (r Result[T]) Value() T { return r.value }

func (r Result[T]) String() string {
	if !r.ok {
		return "Failed"
	}
	return fmt.Sprintf("Ok(%v)", r.value)
}

// MarshalJSON encodes a present result as its value and an absent one as null,
// so observers can persist stage outputs directly.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	if !r.ok {
		return []byte("null"), nil
	}
	return json.Marshal(r.value)
}

// Presence is implemented by every Result and lets results of different types
// be checked together.
type Presence interface {
	OK() bool
}

// Present reports whether every result is present. No results means true.
func Present(rs ...Presence) bool {
	for _, r := range rs {
		if r == nil || !r.OK() {
			return false
		}
	}
	return true
}

// True reports whether r is present and true. An absent boolean result is not true.
func True(r Result[bool]) bool {
	v, ok := r.Get()
	return ok && v
}

// Collect returns Ok of all values when every element is present, and Failed as
// soon as one is absent. A single missing element invalidates the whole set.
func Collect[T any](rs []Result[T]) Result[[]T] {
	out := make([]T, 0, len(rs))
	for _, r := range rs {
		v, ok := r.Get()
		if !ok {
			return Failed[[]T]()
		}
		out = append(out, v)
	}
	return Ok(out)
}

// Then applies fn to a present result and propagates absence otherwise.
func Then[A, B any](r Result[A], fn func(A) Result[B]) Result[B] {
	v, ok := r.Get()
	if !ok {
		return Failed[B]()
	}
	return fn(v)
}
