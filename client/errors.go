package client

import (
	"errors"
	"fmt"

	"lrpc/transport"
)

// ErrNilResponse is returned when the server's answer decodes to nothing.
var ErrNilResponse = errors.New("response is null")

// OpAddress marks a TransportError raised before dialing because the address is malformed.
const OpAddress = "address"

// TransportError reports which step of a round trip failed (address, dial, encode, write,
// read, decode, timeout or cancel) and the address involved.
type TransportError = transport.OpError

// ResolutionError is returned when no address could be found for a service key.
// No connection has been attempted.
type ResolutionError struct {
	ServiceKey string
	Err        error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.ServiceKey, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
