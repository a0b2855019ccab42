package codec

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/docket/doc"
)

// Msgpack encodes records as MessagePack. time.Time values round-trip.
type Msgpack struct{}

// Encode implements Codec.
func (Msgpack) Encode(r doc.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(map[string]any(r)); err != nil {
		return nil, fmt.Errorf("codec: encode msgpack: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode implements Codec.
func (Msgpack) Decode(data []byte) (doc.Record, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	var r map[string]any
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("codec: decode msgpack: %w", err)
	}
	if r == nil {
		return nil, fmt.Errorf("codec: decode msgpack: not a map")
	}
	return normalizeUints(r).(map[string]any), nil
}

// Name implements Codec.
func (Msgpack) Name() string { return NameMsgpack }

// normalizeUints folds the uint64 values loose decoding yields for large
// positive integers into int64 where they fit.
func normalizeUints(v any) any {
	switch t := v.(type) {
	case uint64:
		if t <= 1<<63-1 {
			return int64(t)
		}
		return t
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeUints(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeUints(e)
		}
		return t
	}
	return v
}
