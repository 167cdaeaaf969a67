package service

import (
	"errors"

	"github.com/carlink-protocol/carlink-go/pkg/connection"
	"github.com/carlink-protocol/carlink-go/pkg/registry"
	"github.com/carlink-protocol/carlink-go/pkg/wire"
)

// statusFromError maps a connection-core error to the wire status carried in
// a nack frame.
func statusFromError(err error) wire.Status {
	switch {
	case err == nil:
		return wire.StatusSuccess
	case errors.Is(err, connection.ErrNotFound), errors.Is(err, registry.ErrNotFound):
		return wire.StatusNotFound
	case errors.Is(err, connection.ErrAlreadyExists):
		return wire.StatusAlreadyExists
	case errors.Is(err, connection.ErrResourceExhausted), errors.Is(err, registry.ErrResourceExhausted):
		return wire.StatusResourceExhausted
	case errors.Is(err, connection.ErrClosed):
		return wire.StatusClosed
	default:
		return wire.StatusMalformed
	}
}
