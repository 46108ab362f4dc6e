package ratelimit

import (
	"bytes"
	"io"
	"testing"
)

func TestNewReaderZeroDisablesThrottling(t *testing.T) {
	src := bytes.NewReader([]byte("hello world"))
	r := NewReader(src, 0, 0)
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("got %q", data)
	}
}

func TestNewReaderPassesAllBytesThrough(t *testing.T) {
	src := bytes.NewReader(bytes.Repeat([]byte("x"), 1024))
	r := NewReader(src, 1<<20, 1<<20)
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(data) != 1024 {
		t.Fatalf("got %d bytes, want 1024", len(data))
	}
}
