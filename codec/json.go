package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/xraph/docket/doc"
)

// JSON encodes records as JSON. time.Time values decode as RFC 3339
// strings.
type JSON struct{}

// Encode implements Codec.
func (JSON) Encode(r doc.Record) ([]byte, error) {
	return json.Marshal(r)
}

// Decode implements Codec.
func (JSON) Decode(data []byte) (doc.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var r map[string]any
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("codec: decode json: %w", err)
	}
	if r == nil {
		return nil, fmt.Errorf("codec: decode json: not an object")
	}
	return normalizeNumbers(r).(map[string]any), nil
}

// Name implements Codec.
func (JSON) Name() string { return NameJSON }

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
		return t
	}
	return v
}
