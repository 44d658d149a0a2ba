package vm

import (
	"testing"
)

func TestDecodeSizes(t *testing.T) {
	b := NewProgramBuilder()
	b.Emit(OpAdd)        // offset 0, size 1
	b.Emit(OpConst, 42)  // offset 1, size 5
	b.Emit(OpSexp, 0, 2) // offset 6, size 9
	l := b.NewLabel()
	b.Mark(l)
	b.EmitClosure(l, Capture{Kind: CaptureLocal, Index: 1}, Capture{Kind: CaptureArg, Index: 0}) // offset 15, size 9 + 2*5
	code := b.code

	cases := []struct {
		offset int32
		tag    Opcode
		size   int32
	}{
		{0, OpAdd, 1},
		{1, OpConst, 5},
		{6, OpSexp, 9},
		{15, OpClosure, 19},
	}
	for _, tc := range cases {
		ins, err := Decode(code, tc.offset)
		if err != nil {
			t.Fatalf("Decode(%d): %v", tc.offset, err)
		}
		if ins.Tag != tc.tag {
			t.Errorf("Decode(%d).Tag = %v, want %v", tc.offset, ins.Tag, tc.tag)
		}
		if ins.Size() != tc.size {
			t.Errorf("Decode(%d).Size() = %d, want %d", tc.offset, ins.Size(), tc.size)
		}
	}
}

func TestDecodeClosureCaptures(t *testing.T) {
	b := NewProgramBuilder()
	l := b.NewLabel()
	b.Mark(l)
	b.EmitClosure(l, Capture{Kind: CaptureGlobal, Index: 3}, Capture{Kind: CaptureCaptured, Index: 7})

	ins, err := Decode(b.code, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	caps := ins.Captures()
	if len(caps) != 2 {
		t.Fatalf("len(Captures) = %d, want 2", len(caps))
	}
	if caps[0] != (Capture{Kind: CaptureGlobal, Index: 3}) {
		t.Errorf("capture 0 = %+v", caps[0])
	}
	if caps[1] != (Capture{Kind: CaptureCaptured, Index: 7}) {
		t.Errorf("capture 1 = %+v", caps[1])
	}
}

func TestDecodeNext(t *testing.T) {
	b := NewProgramBuilder()
	b.Emit(OpConst, 1)
	b.Emit(OpDup)
	code := b.code

	first, err := Decode(code, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	second, ok, err := first.Next(code)
	if err != nil || !ok {
		t.Fatalf("Next = %v, %v", ok, err)
	}
	if second.Tag != OpDup {
		t.Errorf("next tag = %v, want DUP", second.Tag)
	}
	if _, ok, _ := second.Next(code); ok {
		t.Error("Next past end of code reported an instruction")
	}
}

func TestDecodeRejectsUnknownOpcode(t *testing.T) {
	if _, err := Decode([]byte{0xEE}, 0); err == nil {
		t.Error("Decode accepted an unknown opcode")
	}
}

func TestDecodeRejectsTruncatedInstruction(t *testing.T) {
	// CONST with only two argument bytes present.
	if _, err := Decode([]byte{byte(OpConst), 1, 0}, 0); err == nil {
		t.Error("Decode accepted a truncated CONST")
	}
	// CLOSURE whose capture tail overruns the section.
	b := NewProgramBuilder()
	l := b.NewLabel()
	b.Mark(l)
	b.EmitClosure(l, Capture{Kind: CaptureLocal, Index: 0})
	if _, err := Decode(b.code[:len(b.code)-2], 0); err == nil {
		t.Error("Decode accepted a CLOSURE with a truncated capture tail")
	}
}

func TestStackEffects(t *testing.T) {
	b := NewProgramBuilder()
	b.Emit(OpAdd)           // 0
	b.Emit(OpConst, 5)      // 1
	b.Emit(OpSexp, 0, 3)    // 6
	b.Emit(OpSta)           // 15
	b.Emit(OpCallC, 2)      // 16
	b.Emit(OpCall, 0, 4)    // 21
	b.Emit(OpCallBarray, 6) // 30
	b.Emit(OpDup)           // 35
	code := b.code

	cases := []struct {
		offset         int32
		popped, pushed int32
	}{
		{0, 2, 1},  // ADD
		{1, 0, 1},  // CONST
		{6, 3, 1},  // SEXP arity 3
		{15, 3, 1}, // STA
		{16, 3, 1}, // CALLC 2 pops args + closure
		{21, 4, 1}, // CALL with 4 args
		{30, 6, 1}, // Barray 6
		{35, 1, 2}, // DUP
	}
	for _, tc := range cases {
		ins, err := Decode(code, tc.offset)
		if err != nil {
			t.Fatalf("Decode(%d): %v", tc.offset, err)
		}
		if got := ins.Popped(); got != tc.popped {
			t.Errorf("%v.Popped() = %d, want %d", ins.Tag, got, tc.popped)
		}
		if got := ins.Pushed(); got != tc.pushed {
			t.Errorf("%v.Pushed() = %d, want %d", ins.Tag, got, tc.pushed)
		}
	}
}

func TestInstructionString(t *testing.T) {
	b := NewProgramBuilder()
	b.Emit(OpConst, 42)
	b.Emit(OpString, 0x1A)
	b.Emit(OpJmp, 0xFF)
	l := b.NewLabel()
	b.Mark(l)
	b.EmitClosure(l, Capture{Kind: CaptureLocal, Index: 2})
	code := b.code

	cases := []struct {
		offset int32
		want   string
	}{
		{0, "CONST 42"},
		{5, "STRING 0x1a"},
		{10, "JMP 0xff"},
		{15, "CLOSURE 0xf 1 L(2)"},
	}
	for _, tc := range cases {
		ins, err := Decode(code, tc.offset)
		if err != nil {
			t.Fatalf("Decode(%d): %v", tc.offset, err)
		}
		if got := ins.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}
