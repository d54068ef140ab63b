package maybe

// Maybe holds an optional value. The zero Maybe holds nothing.
type Maybe[T any] struct {
	value T
	ok    bool
}

func Some[T any](value T) Maybe[T] {
	return Maybe[T]{value: value, ok: true}
}

// Get returns the value and whether it is present.
func (m Maybe[T]) Get() (T, bool) {
	return m.value, m.ok
}
