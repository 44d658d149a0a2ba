package vm

import (
	"testing"
)

func TestBoxUnboxRoundTrip(t *testing.T) {
	for _, n := range []int32{0, 1, -1, 42, -42, 1 << 20, MaxUnboxed, MinUnboxed} {
		v := Box(n)
		if !v.IsUnboxed() {
			t.Errorf("Box(%d).IsUnboxed() = false, want true", n)
		}
		if got := v.Unbox(); got != n {
			t.Errorf("Box(%d).Unbox() = %d, want %d", n, got, n)
		}
	}
}

func TestValueTagDiscrimination(t *testing.T) {
	// Every word is either unboxed or a reference, never both.
	for _, v := range []Value{Box(0), Box(-5), ref(0), ref(7), Box(MaxUnboxed)} {
		if v.IsUnboxed() == v.IsRef() {
			t.Errorf("value %#x: IsUnboxed() = IsRef() = %v", int32(v), v.IsUnboxed())
		}
	}
}

func TestRefIndexRoundTrip(t *testing.T) {
	for _, idx := range []int32{0, 1, 100, 1 << 20} {
		v := ref(idx)
		if !v.IsRef() {
			t.Errorf("ref(%d).IsRef() = false, want true", idx)
		}
		if got := v.index(); got != idx {
			t.Errorf("ref(%d).index() = %d, want %d", idx, got, idx)
		}
	}
}
