package datadic

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDataError_ErrorAndUnwrap(t *testing.T) {
	t.Run("small data", func(t *testing.T) {
		inner := errors.New("inner")
		err := dataErrf([]byte{0xAA, 0xBB}, 1, inner, "oops")
		var de *DataError
		if !errors.As(err, &de) {
			t.Fatalf("err = %T, wanted *DataError", err)
		}
		if !errors.Is(err, inner) {
			t.Fatalf("errors.Is(err, inner) = false, wanted true")
		}
		s := err.Error()
		if !strings.Contains(s, "oops at 1") || !strings.Contains(s, "inner") || !strings.Contains(s, "(2) aabb") {
			t.Fatalf("err.Error() = %q, wanted message with oops/inner/(2)", s)
		}
	})

	t.Run("large data includes prefix+suffix", func(t *testing.T) {
		data := make([]byte, 200)
		for i := range data {
			data[i] = byte(i)
		}
		err := dataErrf(data, 0, nil, "oops")
		s := err.Error()
		if !strings.Contains(s, "(200)") || !strings.Contains(s, "...") {
			t.Fatalf("err.Error() = %q, wanted message with (200) and ...", s)
		}
	})
}

func TestTableError_ErrorAndUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := tableErrf("db.t1", "idx1", "name", inner, "oops %d", 1)
	if !errors.Is(err, inner) {
		t.Fatalf("errors.Is(err, inner) = false, wanted true")
	}
	if s, want := err.Error(), "db.t1.idx1(name): oops 1: inner"; s != want {
		t.Fatalf("err.Error() = %q, wanted %q", s, want)
	}

	if s, want := (&TableError{Table: "db.t1", Err: inner}).Error(), "db.t1: inner"; s != want {
		t.Fatalf("TableError.Error() = %q, wanted %q", s, want)
	}
}

func TestIsDecodeError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{dataErrf(nil, 0, nil, "x"), true},
		{ErrInsufficientData, true},
		{tableErrf("db.t", "", "", dataErrf(nil, 0, nil, "x"), "wrapped"), true},
		{fmt.Errorf("ctx: %w", ErrInsufficientData), true},
		{ErrTableNotFound, false},
		{ErrValueType, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsDecodeError(tt.err); got != tt.want {
			t.Errorf("IsDecodeError(%v) = %v, wanted %v", tt.err, got, tt.want)
		}
	}
}
