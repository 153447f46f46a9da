package server

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"

	"lrpc/codec"
	"lrpc/message"
)

var (
	errorType   = reflect.TypeFor[error]()
	contextType = reflect.TypeFor[context.Context]()
)

// methodType is one callable signature of a service method.
type methodType struct {
	method    reflect.Method
	withCtx   bool           // first argument is a context.Context
	argTypes  []reflect.Type // remote arguments, ctx excluded
	signature string         // wire type names of argTypes joined by ","
	hasResult bool
	hasError  bool
}

type service struct {
	key  string // service key: interface name + optional version
	rcvr reflect.Value
	typ  reflect.Type
	// method name → parameter signature → method
	method map[string]map[string]*methodType
}

// newService 创建 service 并扫描所有合法方法
func newService(key string, rcvr any) (*service, error) {
	if rcvr == nil {
		return nil, fmt.Errorf("rpc: nil implementation for %s", key)
	}
	typ := reflect.TypeOf(rcvr)
	val := reflect.ValueOf(rcvr)
	if typ.Kind() == reflect.Pointer && val.IsNil() {
		return nil, fmt.Errorf("rpc: nil implementation for %s", key)
	}

	s := &service{
		key:    key,
		rcvr:   val,
		typ:    typ,
		method: make(map[string]map[string]*methodType),
	}
	skipped := s.registerMethods()
	if len(s.method) == 0 {
		return nil, fmt.Errorf("rpc: %s has no callable methods (skipped: %s)", typ, strings.Join(skipped, "; "))
	}
	return s, nil
}

// registerMethods scans the exported methods of the receiver. A method is callable when
//   - its arguments are an optional leading context.Context followed by representable types
//   - its results are (), (T), (error) or (T, error) with T representable
//
// Deriving the schemas also registers the argument and result type names with the decoder.
// It returns a description of every skipped method.
func (s *service) registerMethods() (skipped []string) {
	for i := 0; i < s.typ.NumMethod(); i++ {
		method := s.typ.Method(i)
		mt, err := newMethodType(method)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", method.Name, err))
			continue
		}
		if s.method[method.Name] == nil {
			s.method[method.Name] = make(map[string]*methodType)
		}
		s.method[method.Name][mt.signature] = mt
	}
	return skipped
}

func newMethodType(method reflect.Method) (*methodType, error) {
	mtype := method.Type
	mt := &methodType{method: method}

	// In(0) is the receiver
	first := 1
	if mtype.NumIn() > 1 && mtype.In(1) == contextType {
		mt.withCtx = true
		first = 2
	}
	if mtype.IsVariadic() {
		return nil, fmt.Errorf("variadic")
	}

	names := make([]string, 0, mtype.NumIn()-first)
	for i := first; i < mtype.NumIn(); i++ {
		argType := mtype.In(i)
		schema, err := codec.SchemaOf(argType)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i-first, err)
		}
		mt.argTypes = append(mt.argTypes, argType)
		names = append(names, schema.Name)
	}
	mt.signature = strings.Join(names, ",")

	switch mtype.NumOut() {
	case 0:
	case 1:
		if mtype.Out(0) == errorType {
			mt.hasError = true
		} else {
			mt.hasResult = true
		}
	case 2:
		if mtype.Out(1) != errorType {
			return nil, fmt.Errorf("second result must be error")
		}
		mt.hasResult = true
		mt.hasError = true
	default:
		return nil, fmt.Errorf("too many results")
	}
	if mt.hasResult {
		if _, err := codec.SchemaOf(mtype.Out(0)); err != nil {
			return nil, fmt.Errorf("result: %w", err)
		}
	}
	return mt, nil
}

// lookup finds the method matching name and parameter types exactly.
func (s *service) lookup(name string, paramTypes []string) (*methodType, bool) {
	overloads, ok := s.method[name]
	if !ok {
		return nil, false
	}
	mt, ok := overloads[strings.Join(paramTypes, ",")]
	return mt, ok
}

// call 通过反射调用方法，panic 会被转换成 Panic 异常
func (s *service) call(ctx context.Context, mt *methodType, req *message.Request) (resp *message.Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("panic in %s.%s: %v\n%s", s.key, mt.method.Name, r, debug.Stack())
			resp = message.Failure(req.RequestID, message.KindPanic, "%s.%s panicked: %v", s.key, mt.method.Name, r)
		}
	}()

	args := make([]reflect.Value, 0, len(mt.argTypes)+2)
	args = append(args, s.rcvr)
	if mt.withCtx {
		args = append(args, reflect.ValueOf(ctx))
	}
	for i, argType := range mt.argTypes {
		p := req.Parameters[i]
		if p == nil {
			args = append(args, reflect.Zero(argType))
			continue
		}
		v := reflect.ValueOf(p)
		if v.Type() != argType {
			return message.Failure(req.RequestID, message.KindInvalidRequest,
				"parameter %d of %s.%s is %s, want %s", i, s.key, mt.method.Name, v.Type(), argType)
		}
		args = append(args, v)
	}

	results := mt.method.Func.Call(args)

	resp = &message.Response{RequestID: req.RequestID}
	if mt.hasError {
		if errv := results[len(results)-1]; !errv.IsNil() {
			return message.Failure(req.RequestID, message.KindApplication, "%s", errv.Interface().(error).Error())
		}
	}
	if mt.hasResult {
		resp.Result = results[0].Interface()
	}
	return resp
}
