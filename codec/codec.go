// Package codec serializes Requests and Responses into frame payloads.
//
// Two pieces cooperate:
//   - a Codec turns a single Go value into bytes and back (JSON or gob);
//   - the schema cache describes each Go type once (its wire type name and whether it can be
//     represented at all) so that every parameter and result can travel as a
//     (type name, bytes) pair and be rebuilt with its original type on the other side.
package codec

import (
	"fmt"
	"strings"
)

type CodecType byte

const (
	CodecTypeJSON CodecType = 0
	CodecTypeGob  CodecType = 1
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=Gob
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeGob {
		return &GobCodec{}
	}

	return &JSONCodec{}
}

// ParseCodecType maps a configuration name ("json", "gob") to a CodecType.
func ParseCodecType(name string) (CodecType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return CodecTypeJSON, nil
	case "gob":
		return CodecTypeGob, nil
	default:
		return 0, fmt.Errorf("unknown codec %q (expected json or gob)", name)
	}
}

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeGob:
		return "gob"
	default:
		return fmt.Sprintf("codec(%d)", byte(t))
	}
}
