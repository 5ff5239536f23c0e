package httputil

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"
)

func TestReadBody_KnownLength(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 100)

	got, err := ReadBody(bytes.NewReader(data), int64(len(data)), 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("body mismatch")
	}
	if cap(got) != len(data)+1 {
		t.Errorf("want single allocation of %d, got cap %d", len(data)+1, cap(got))
	}
}

func TestReadBody_UnknownLength(t *testing.T) {
	data := bytes.Repeat([]byte{0x5A}, 3000)

	got, err := ReadBody(iotest.OneByteReader(bytes.NewReader(data)), -1, 4096)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("body mismatch")
	}
}

func TestReadBody_Empty(t *testing.T) {
	got, err := ReadBody(bytes.NewReader(nil), 0, 16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("want empty body, got %d bytes", len(got))
	}
}

func TestReadBody_TooLarge(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, 65)

	tests := []struct {
		name   string
		r      io.Reader
		length int64
	}{
		{"declared length", bytes.NewReader(data), int64(len(data))},
		{"unknown length", iotest.OneByteReader(bytes.NewReader(data)), -1},
		{"understated length", bytes.NewReader(data), 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadBody(tt.r, tt.length, 64); !errors.Is(err, ErrBodyTooLarge) {
				t.Errorf("want ErrBodyTooLarge, got %v", err)
			}
		})
	}
}

func TestReadBody_ReaderError(t *testing.T) {
	boom := errors.New("boom")
	r := io.MultiReader(bytes.NewReader([]byte("abc")), iotest.ErrReader(boom))

	if _, err := ReadBody(r, -1, 64); !errors.Is(err, boom) {
		t.Errorf("want reader error, got %v", err)
	}
}
