package codec

import (
	"errors"
	"fmt"
	"reflect"

	"lrpc/message"
)

// ErrMalformed is returned when a payload cannot be decoded.
var ErrMalformed = errors.New("malformed payload")

// wireRequest is the serialized layout of a message.Request.
// Every parameter is encoded on its own so it can be rebuilt from its type name.
type wireRequest struct {
	RequestID      string
	InterfaceName  string
	ServiceVersion string
	MethodName     string
	ParameterTypes []string
	Parameters     [][]byte
}

// wireResponse is the serialized layout of a message.Response.
type wireResponse struct {
	RequestID  string
	ResultType string // Empty when there is no result
	Result     []byte
	Exception  *message.RemoteError
}

// EncodeRequest serializes req. Parameter values must match the declared ParameterTypes.
func EncodeRequest(c Codec, req *message.Request) ([]byte, error) {
	if len(req.Parameters) != len(req.ParameterTypes) {
		return nil, fmt.Errorf("encode request %s: %d parameters but %d parameter types",
			req.RequestID, len(req.Parameters), len(req.ParameterTypes))
	}

	w := wireRequest{
		RequestID:      req.RequestID,
		InterfaceName:  req.InterfaceName,
		ServiceVersion: req.ServiceVersion,
		MethodName:     req.MethodName,
		ParameterTypes: req.ParameterTypes,
		Parameters:     make([][]byte, len(req.Parameters)),
	}
	for i, p := range req.Parameters {
		name, data, err := encodeValue(c, p)
		if err != nil {
			return nil, fmt.Errorf("encode request %s: parameter %d: %w", req.RequestID, i, err)
		}
		if name == "" {
			return nil, fmt.Errorf("encode request %s: parameter %d: %w: untyped nil", req.RequestID, i, ErrUnsupportedType)
		}
		if name != req.ParameterTypes[i] {
			return nil, fmt.Errorf("encode request %s: parameter %d is %s, declared %s",
				req.RequestID, i, name, req.ParameterTypes[i])
		}
		w.Parameters[i] = data
	}

	return c.Encode(&w)
}

// DecodeRequest rebuilds a Request from a payload.
// When the envelope decodes but a parameter does not, the partially filled request is returned
// together with the error so the caller can still answer with the right request id.
func DecodeRequest(c Codec, data []byte) (*message.Request, error) {
	var w wireRequest
	if err := c.Decode(data, &w); err != nil {
		return nil, fmt.Errorf("%w: request: %v", ErrMalformed, err)
	}

	req := &message.Request{
		RequestID:      w.RequestID,
		InterfaceName:  w.InterfaceName,
		ServiceVersion: w.ServiceVersion,
		MethodName:     w.MethodName,
		ParameterTypes: w.ParameterTypes,
	}
	if len(w.Parameters) != len(w.ParameterTypes) {
		return req, fmt.Errorf("%w: request %s: %d parameters but %d parameter types",
			ErrMalformed, w.RequestID, len(w.Parameters), len(w.ParameterTypes))
	}

	if len(w.Parameters) == 0 {
		return req, nil
	}
	req.Parameters = make([]any, len(w.Parameters))
	for i := range w.Parameters {
		v, err := decodeValue(c, w.ParameterTypes[i], w.Parameters[i])
		if err != nil {
			return req, fmt.Errorf("request %s: parameter %d: %w", w.RequestID, i, err)
		}
		req.Parameters[i] = v
	}
	return req, nil
}

// EncodeResponse serializes resp. The result travels under the name of its dynamic type.
func EncodeResponse(c Codec, resp *message.Response) ([]byte, error) {
	w := wireResponse{
		RequestID: resp.RequestID,
		Exception: resp.Exception,
	}
	if resp.Exception == nil {
		name, data, err := encodeValue(c, resp.Result)
		if err != nil {
			return nil, fmt.Errorf("encode response %s: result: %w", resp.RequestID, err)
		}
		w.ResultType = name
		w.Result = data
	}

	return c.Encode(&w)
}

// DecodeResponse rebuilds a Response from a payload.
func DecodeResponse(c Codec, data []byte) (*message.Response, error) {
	var w wireResponse
	if err := c.Decode(data, &w); err != nil {
		return nil, fmt.Errorf("%w: response: %v", ErrMalformed, err)
	}

	resp := &message.Response{
		RequestID: w.RequestID,
		Exception: w.Exception,
	}
	if w.Exception == nil {
		v, err := decodeValue(c, w.ResultType, w.Result)
		if err != nil {
			return nil, fmt.Errorf("response %s: result: %w", w.RequestID, err)
		}
		resp.Result = v
	}
	return resp, nil
}

// encodeValue returns the wire type name and bytes for v.
// An untyped nil yields no name; nil pointers, slices and maps yield a name without bytes.
func encodeValue(c Codec, v any) (string, []byte, error) {
	if v == nil {
		return "", nil, nil
	}

	s, err := SchemaOf(reflect.TypeOf(v))
	if err != nil {
		return "", nil, err
	}
	if isNil(reflect.ValueOf(v)) {
		return s.Name, nil, nil
	}

	data, err := c.Encode(v)
	if err != nil {
		return "", nil, err
	}
	return s.Name, data, nil
}

func decodeValue(c Codec, name string, data []byte) (any, error) {
	if name == "" {
		return nil, nil
	}

	t, ok := LookupType(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	if len(data) == 0 {
		return reflect.Zero(t).Interface(), nil
	}

	s, err := SchemaOf(t)
	if err != nil {
		return nil, err
	}
	v := s.New()
	if err := c.Decode(data, v.Interface()); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}
	return v.Elem().Interface(), nil
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map:
		return v.IsNil()
	}
	return false
}
