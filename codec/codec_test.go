package codec_test

import (
	"testing"
	"time"

	"github.com/xraph/docket/codec"
	"github.com/xraph/docket/doc"
)

func sample() doc.Record {
	return doc.Record{
		"_id":      "job_01h",
		"name":     "build",
		"started":  1700000000.25,
		"n_msgs":   3,
		"big":      int64(1) << 60,
		"cancel":   false,
		"ended":    nil,
		"progress": []any{"a", "b"},
		"spec":     map[string]any{"callable": "pkg.Fn", "kwargs": map[string]any{"n": 2}},
	}
}

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{codec.NameJSON, codec.NameMsgpack} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c, err := codec.Get(name)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if c.Name() != name {
				t.Fatalf("Name = %q, want %q", c.Name(), name)
			}

			in := sample()
			data, err := c.Encode(in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			out, err := c.Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !doc.Equal(map[string]any(out), map[string]any(in)) {
				t.Fatalf("round trip:\n got %#v\nwant %#v", out, in)
			}
		})
	}
}

func TestDecodedIntegersAreInt64(t *testing.T) {
	for _, name := range []string{codec.NameJSON, codec.NameMsgpack} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			c, _ := codec.Get(name)
			data, err := c.Encode(doc.Record{"n": 7, "nested": []any{uint(5)}, "f": 1.5})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			out, err := c.Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if _, ok := out["n"].(int64); !ok {
				t.Errorf("n decoded as %T, want int64", out["n"])
			}
			if _, ok := out["nested"].([]any)[0].(int64); !ok {
				t.Errorf("nested decoded as %T, want int64", out["nested"].([]any)[0])
			}
			if _, ok := out["f"].(float64); !ok {
				t.Errorf("f decoded as %T, want float64", out["f"])
			}
		})
	}
}

func TestMsgpackKeepsTime(t *testing.T) {
	t.Parallel()
	now := time.Now().Truncate(time.Microsecond)
	data, err := codec.Msgpack{}.Encode(doc.Record{"at": now})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := codec.Msgpack{}.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, ok := out["at"].(time.Time)
	if !ok || !got.Equal(now) {
		t.Fatalf("at = %#v, want %v", out["at"], now)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		codec codec.Codec
		data  []byte
	}{
		{"json garbage", codec.JSON{}, []byte("{")},
		{"json null", codec.JSON{}, []byte("null")},
		{"json array", codec.JSON{}, []byte("[1]")},
		{"msgpack garbage", codec.Msgpack{}, []byte{0xc1}},
		{"msgpack nil", codec.Msgpack{}, []byte{0xc0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := tt.codec.Decode(tt.data); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestGetUnknown(t *testing.T) {
	t.Parallel()
	if _, err := codec.Get("protobuf"); err == nil {
		t.Fatal("expected error for unknown codec")
	}
	c, err := codec.Get("")
	if err != nil || c.Name() != codec.NameMsgpack {
		t.Fatalf("default codec = %v, %v", c, err)
	}
}
