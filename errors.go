package nomos

import (
	"errors"

	"github.com/misaret/nomos-go/internal"
	"github.com/misaret/nomos-go/protocol"
)

var (
	ErrNoServers            = errors.New("nomos: no servers configured")
	ErrInvalidEndpoint      = errors.New("nomos: invalid endpoint")
	ErrInvalidArgument      = errors.New("nomos: invalid argument")
	ErrUnsupportedOperation = errors.New("nomos: operation not supported")
)

// Transport failures. Get, Put and Delete never return these; they are logged
// and the operation reports a miss or false.
var (
	ErrConnection    = internal.ErrConnection
	ErrTransport     = internal.ErrTransport
	ErrTimeout       = internal.ErrTimeout
	ErrPoolExhausted = internal.ErrPoolExhausted
	ErrClosed        = internal.ErrClosed
	ErrDecode        = protocol.ErrDecode
)
