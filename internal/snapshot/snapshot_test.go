package snapshot

import (
	"errors"
	"testing"
)

type payload struct {
	ID      string         `json:"id"`
	Status  string         `json:"status"`
	Players map[string]int `json:"players"`
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := NewManager(nil, []byte("test-secret"), 0)
	in := payload{ID: "t1", Status: "RUNNING", Players: map[string]int{"u1": 5000, "u2": 3000}}

	blob, sum, err := m.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var out payload
	if err := m.Decode(blob, sum, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ID != in.ID || out.Status != in.Status || out.Players["u1"] != 5000 || out.Players["u2"] != 3000 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestDecodeRejectsTamperedBlob(t *testing.T) {
	m := NewManager(nil, []byte("test-secret"), 0)
	blob, sum, err := m.Encode(payload{ID: "t1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	blob[len(blob)-1] ^= 0xff
	var out payload
	if err := m.Decode(blob, sum, &out); !errors.Is(err, ErrSealMismatch) {
		t.Fatalf("expected ErrSealMismatch, got %v", err)
	}
}

func TestDecodeRejectsWrongKey(t *testing.T) {
	sealer := NewManager(nil, []byte("key-a"), 0)
	loader := NewManager(nil, []byte("key-b"), 0)

	blob, sum, err := sealer.Encode(payload{ID: "t1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var out payload
	if err := loader.Decode(blob, sum, &out); !errors.Is(err, ErrSealMismatch) {
		t.Fatalf("expected ErrSealMismatch under different key, got %v", err)
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	m := NewManager(nil, []byte("test-secret"), 0)
	blob, sum, err := m.Encode(map[string]any{"id": "t1", "status": "RUNNING", "future_field": 42})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var out payload
	if err := m.Decode(blob, sum, &out); err != nil {
		t.Fatalf("decode with unknown field: %v", err)
	}
	if out.ID != "t1" || out.Status != "RUNNING" {
		t.Fatalf("known fields lost: %+v", out)
	}
}
