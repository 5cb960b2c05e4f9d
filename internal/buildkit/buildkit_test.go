package buildkit

import (
	"testing"
	"time"
)

func TestTagWithRegistry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	spec := Spec{Name: "api"}
	tag := Tag(spec, 5000, now)
	want := "localhost:5000/api:1700000000"
	if tag != want {
		t.Errorf("Tag() = %q, want %q", tag, want)
	}
}

func TestTagWithoutRegistry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	spec := Spec{Name: "api"}
	tag := Tag(spec, 0, now)
	want := "devrig-api:latest"
	if tag != want {
		t.Errorf("Tag() = %q, want %q", tag, want)
	}
}
