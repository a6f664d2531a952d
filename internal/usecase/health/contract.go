package health

import "context"

// CachePinger checks shared cache availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// FieldCounter reports how many virtual fields are registered.
type FieldCounter interface {
	Len() int
}
