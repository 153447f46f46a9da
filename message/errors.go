package message

import "fmt"

// ErrorKind classifies a RemoteError.
type ErrorKind string

const (
	KindServiceNotFound ErrorKind = "ServiceNotFound" // No implementation registered under the service key
	KindMethodNotFound  ErrorKind = "MethodNotFound"  // No method with that name and parameter signature
	KindInvalidRequest  ErrorKind = "InvalidRequest"  // The request frame could not be decoded or is inconsistent
	KindApplication     ErrorKind = "Application"     // The target method returned an error
	KindPanic           ErrorKind = "Panic"           // The target method or a middleware panicked
	KindTimeout         ErrorKind = "Timeout"
	KindRateLimited     ErrorKind = "RateLimited"
	KindEncode          ErrorKind = "Encode"   // The result could not be serialized
	KindInternal        ErrorKind = "Internal" // The handler chain produced no response
)

// RemoteError is the error descriptor carried in a Response.
// On the client it is returned as-is, so callers can errors.As it.
type RemoteError struct {
	Kind    ErrorKind
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc %s: %s", e.Kind, e.Message)
}

// Is matches another RemoteError of the same kind, so errors.Is(err, &RemoteError{Kind: k}) works.
func (e *RemoteError) Is(target error) bool {
	t, ok := target.(*RemoteError)
	return ok && t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}
