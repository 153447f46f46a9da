// Package message defines the Request and Response values exchanged between client and server.
//
// A Request names its target by interface name plus an optional version (together the service
// key), a method name, and the ordered parameter types and values. A Response echoes the
// request id and carries either a result or a RemoteError. Both are value objects built fresh
// for every call; they are serialized by the codec package and framed by the protocol package.
package message

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Request carries one remote invocation.
//
//   - ParameterTypes holds the wire type names of the arguments, used to pick the method
//     signature on the server.
//   - Parameters holds the argument values, positionally aligned with ParameterTypes.
type Request struct {
	RequestID      string
	InterfaceName  string // Fully qualified service identity, e.g. "lrpc/sample/hello.HelloService"
	ServiceVersion string // Empty means unversioned
	MethodName     string
	ParameterTypes []string
	Parameters     []any
}

// Response answers exactly one Request.
// A non-nil Exception means the call failed and Result must be ignored.
type Response struct {
	RequestID string
	Result    any
	Exception *RemoteError
}

// NewRequestID returns a fresh random request id.
func NewRequestID() string {
	return uuid.NewString()
}

// ServiceKey returns the canonical lookup key for a service: the interface name, suffixed with
// "-" + version when the (trimmed) version is not empty.
//
// The same function is used when registering implementations, publishing them to the registry,
// discovering them and dispatching requests, so the keys always agree.
func ServiceKey(interfaceName, version string) string {
	version = strings.TrimSpace(version)
	if version == "" {
		return interfaceName
	}
	return interfaceName + "-" + version
}

// ServiceKey returns the key this request is dispatched by.
func (r *Request) ServiceKey() string {
	return ServiceKey(r.InterfaceName, r.ServiceVersion)
}

// Validate checks the structural invariants of a request.
func (r *Request) Validate() error {
	if r.InterfaceName == "" {
		return fmt.Errorf("request %s: empty interface name", r.RequestID)
	}
	if r.MethodName == "" {
		return fmt.Errorf("request %s: empty method name", r.RequestID)
	}
	if len(r.Parameters) != len(r.ParameterTypes) {
		return fmt.Errorf("request %s: %d parameters but %d parameter types",
			r.RequestID, len(r.Parameters), len(r.ParameterTypes))
	}
	for i, t := range r.ParameterTypes {
		if t == "" {
			return fmt.Errorf("request %s: parameter %d has no type", r.RequestID, i)
		}
	}
	return nil
}

// HasException reports whether the call failed.
func (r *Response) HasException() bool {
	return r.Exception != nil
}

// Failure builds a Response for the given request id carrying an exception.
func Failure(requestID string, kind ErrorKind, format string, args ...any) *Response {
	return &Response{
		RequestID: requestID,
		Exception: &RemoteError{Kind: kind, Message: fmt.Sprintf(format, args...)},
	}
}
