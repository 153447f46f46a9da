package codec

import (
	"encoding"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

var (
	// ErrUnsupportedType is returned when a type cannot be represented on the wire
	// (channels, functions, interfaces, complex numbers, structs without exported fields, ...).
	ErrUnsupportedType = errors.New("unsupported type")
	// ErrUnknownType is returned when a payload names a type that was never registered.
	ErrUnknownType = errors.New("unknown type")
)

// Schema describes how values of one Go type travel on the wire.
type Schema struct {
	Type reflect.Type
	Name string // Wire type name, e.g. "string", "[]int", "lrpc/sample/hello.Person"
}

// New allocates a pointer to a zero value of the schema's type, ready to decode into.
func (s *Schema) New() reflect.Value {
	return reflect.New(s.Type)
}

// Process-wide caches, filled lazily and never evicted.
//   - schemas: type identity → derived schema
//   - types:   wire type name → type, used to rebuild values on decode
var (
	schemas = xsync.NewMapOf[reflect.Type, *Schema]()
	types   = xsync.NewMapOf[string, reflect.Type]()
)

func init() {
	builtins := []any{
		false, "",
		int(0), int8(0), int16(0), int32(0), int64(0),
		uint(0), uint8(0), uint16(0), uint32(0), uint64(0),
		float32(0), float64(0),
		[]byte(nil), []string(nil), []int(nil), []int64(nil), []float64(nil), []bool(nil),
		map[string]string(nil), map[string]int(nil), map[string]int64(nil), map[string]float64(nil),
		time.Time{}, time.Duration(0),
	}
	for _, v := range builtins {
		if err := Register(v); err != nil {
			panic(err)
		}
	}
}

// SchemaOf returns the cached schema for t, deriving it on first use.
//
// Derivation walks the whole type and is comparatively expensive; the result is cached under the
// type identity. Concurrent first uses may derive twice, the first stored schema wins and every
// caller gets that one. Failed derivations are not cached.
func SchemaOf(t reflect.Type) (*Schema, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil type", ErrUnsupportedType)
	}
	if s, ok := schemas.Load(t); ok {
		return s, nil
	}

	if err := validate(t, make(map[reflect.Type]bool)); err != nil {
		return nil, err
	}

	s, _ := schemas.LoadOrStore(t, &Schema{Type: t, Name: TypeName(t)})
	types.LoadOrStore(s.Name, t)
	return s, nil
}

// Register makes the dynamic type of v known to the decoder.
// Servers register their method signatures automatically; clients register result types they
// expect (Invoke does this for its type parameter).
func Register(v any) error {
	_, err := SchemaOf(reflect.TypeOf(v))
	return err
}

// RegisterType is Register for a reflect.Type.
func RegisterType(t reflect.Type) error {
	_, err := SchemaOf(t)
	return err
}

// LookupType resolves a wire type name.
func LookupType(name string) (reflect.Type, bool) {
	return types.Load(name)
}

// TypeNameOf returns the wire type name of v's dynamic type, registering it.
func TypeNameOf(v any) (string, error) {
	s, err := SchemaOf(reflect.TypeOf(v))
	if err != nil {
		return "", err
	}
	return s.Name, nil
}

// TypeName spells t the way it travels on the wire. Named types are qualified with their full
// import path so two packages with the same name cannot collide.
func TypeName(t reflect.Type) string {
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return t.Name()
		}
		return t.PkgPath() + "." + t.Name()
	}

	switch t.Kind() {
	case reflect.Pointer:
		return "*" + TypeName(t.Elem())
	case reflect.Slice:
		return "[]" + TypeName(t.Elem())
	case reflect.Array:
		return fmt.Sprintf("[%d]%s", t.Len(), TypeName(t.Elem()))
	case reflect.Map:
		return "map[" + TypeName(t.Key()) + "]" + TypeName(t.Elem())
	default:
		return t.String()
	}
}

// NameOf returns the wire name of T without registering it. It also names service interfaces:
// NameOf[hello.HelloService]() is "lrpc/sample/hello.HelloService".
func NameOf[T any]() string {
	return TypeName(reflect.TypeFor[T]())
}

var (
	jsonMarshalerType   = reflect.TypeFor[json.Marshaler]()
	textMarshalerType   = reflect.TypeFor[encoding.TextMarshaler]()
	binaryMarshalerType = reflect.TypeFor[encoding.BinaryMarshaler]()
	gobEncoderType      = reflect.TypeFor[gob.GobEncoder]()
)

// marshalsItself reports whether t (or *t) brings its own encoding.
func marshalsItself(t reflect.Type) bool {
	for _, m := range []reflect.Type{jsonMarshalerType, textMarshalerType, binaryMarshalerType, gobEncoderType} {
		if t.Implements(m) || reflect.PointerTo(t).Implements(m) {
			return true
		}
	}
	return false
}

func validate(t reflect.Type, seen map[reflect.Type]bool) error {
	if seen[t] {
		return nil // recursive type, already being checked
	}
	seen[t] = true

	if t.Kind() != reflect.Interface && marshalsItself(t) {
		return nil
	}

	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return nil

	case reflect.Pointer, reflect.Slice, reflect.Array:
		return validate(t.Elem(), seen)

	case reflect.Map:
		switch t.Key().Kind() {
		case reflect.String,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		default:
			if !t.Key().Implements(textMarshalerType) {
				return fmt.Errorf("%w: map key %s", ErrUnsupportedType, t.Key())
			}
		}
		return validate(t.Elem(), seen)

	case reflect.Struct:
		exported := 0
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			exported++
			if err := validate(f.Type, seen); err != nil {
				return fmt.Errorf("%s.%s: %w", t, f.Name, err)
			}
		}
		if exported == 0 {
			return fmt.Errorf("%w: %s has no exported fields", ErrUnsupportedType, t)
		}
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
}
