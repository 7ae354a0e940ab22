package relay

import "fmt"

// ErrModel describes a backend failure. Backends fold it into a response's
// metadata rather than returning it; providers use it internally.
type ErrModel struct {
	Backend string
	Message string
}

func (e *ErrModel) Error() string {
	return fmt.Sprintf("%s: %s", e.Backend, e.Message)
}

// ErrHTTP describes a non-2xx response from an upstream API.
type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}
