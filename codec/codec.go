// Package codec serializes records for key-value backed stores.
//
// Decoded numbers come back as int64 when integral and float64 otherwise,
// whatever Go type was encoded. Comparisons elsewhere in docket are numeric
// across types, so this normalization is invisible to queries and updates.
package codec

import (
	"fmt"

	"github.com/xraph/docket/doc"
)

// Codec encodes and decodes records.
type Codec interface {
	// Encode serializes a record to bytes.
	Encode(r doc.Record) ([]byte, error)

	// Decode deserializes bytes into a record.
	Decode(data []byte) (doc.Record, error)

	// Name returns the codec identifier ("json", "msgpack").
	Name() string
}

// Codec names.
const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
)

// Get returns a codec by name. The empty name selects msgpack.
func Get(name string) (Codec, error) {
	switch name {
	case NameMsgpack, "":
		return Msgpack{}, nil
	case NameJSON:
		return JSON{}, nil
	}
	return nil, fmt.Errorf("codec: unknown codec %q", name)
}
