package vm

import (
	"encoding/binary"
)

// ---------------------------------------------------------------------------
// ProgramBuilder: helper for constructing bytecode images
// ---------------------------------------------------------------------------

// ProgramBuilder assembles a loadable bytecode image: string table,
// publics table and code section, with label support for the absolute
// code offsets jumps and calls carry.
type ProgramBuilder struct {
	code    []byte
	strings []byte
	offsets map[string]int32
	publics []Public
	globals int32
}

// NewProgramBuilder creates an empty builder.
func NewProgramBuilder() *ProgramBuilder {
	return &ProgramBuilder{
		offsets: make(map[string]int32),
	}
}

// SetGlobals sets the globals_length header field.
func (b *ProgramBuilder) SetGlobals(n int32) {
	b.globals = n
}

// String interns s in the string table and returns its offset. Repeated
// strings share one entry.
func (b *ProgramBuilder) String(s string) int32 {
	if off, ok := b.offsets[s]; ok {
		return off
	}
	off := int32(len(b.strings))
	b.strings = append(b.strings, s...)
	b.strings = append(b.strings, 0)
	b.offsets[s] = off
	return off
}

// Public registers a named entry point at the current code position.
func (b *ProgramBuilder) Public(name string) {
	b.publics = append(b.publics, Public{
		NameOffset: b.String(name),
		CodeOffset: int32(len(b.code)),
	})
}

// Position is the current code offset.
func (b *ProgramBuilder) Position() int32 {
	return int32(len(b.code))
}

// Emit appends an instruction with its fixed arguments.
func (b *ProgramBuilder) Emit(op Opcode, args ...int32) {
	b.code = append(b.code, byte(op))
	for _, a := range args {
		b.emitInt32(a)
	}
}

func (b *ProgramBuilder) emitInt32(v int32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	b.code = append(b.code, buf[:]...)
}

// EmitClosure appends a CLOSURE with its capture tail. The target is a
// label so forward closure bodies work.
func (b *ProgramBuilder) EmitClosure(target *Label, captures ...Capture) {
	b.code = append(b.code, byte(OpClosure))
	b.emitLabelArg(target)
	b.emitInt32(int32(len(captures)))
	for _, c := range captures {
		b.code = append(b.code, byte(c.Kind))
		b.emitInt32(c.Index)
	}
}

// EmitCall appends a CALL of a labeled function with n arguments.
func (b *ProgramBuilder) EmitCall(target *Label, n int32) {
	b.code = append(b.code, byte(OpCall))
	b.emitLabelArg(target)
	b.emitInt32(n)
}

// EmitJump appends JMP/CJMPZ/CJMPNZ targeting a label.
func (b *ProgramBuilder) EmitJump(op Opcode, target *Label) {
	b.code = append(b.code, byte(op))
	b.emitLabelArg(target)
}

// ---------------------------------------------------------------------------
// Labels
// ---------------------------------------------------------------------------

// Label is a code offset that may not be known yet. Arguments referencing
// an unresolved label are patched when the label is marked.
type Label struct {
	resolved bool
	position int32
	refs     []int32
}

// NewLabel creates an unresolved label.
func (b *ProgramBuilder) NewLabel() *Label {
	return &Label{}
}

// Mark resolves a label to the current code position and patches every
// recorded forward reference.
func (b *ProgramBuilder) Mark(l *Label) {
	if l.resolved {
		panic("label already resolved")
	}
	l.resolved = true
	l.position = int32(len(b.code))
	for _, ref := range l.refs {
		binary.LittleEndian.PutUint32(b.code[ref:], uint32(l.position))
	}
	l.refs = nil
}

func (b *ProgramBuilder) emitLabelArg(l *Label) {
	if l.resolved {
		b.emitInt32(l.position)
		return
	}
	l.refs = append(l.refs, int32(len(b.code)))
	b.emitInt32(0)
}

// ---------------------------------------------------------------------------
// Assembly
// ---------------------------------------------------------------------------

// Build assembles the final little-endian image.
func (b *ProgramBuilder) Build() []byte {
	out := make([]byte, 0, headerSize+len(b.publics)*publicSize+len(b.strings)+len(b.code))

	var buf [4]byte
	putInt32 := func(v int32) {
		binary.LittleEndian.PutUint32(buf[:], uint32(v))
		out = append(out, buf[:]...)
	}

	putInt32(int32(len(b.strings)))
	putInt32(b.globals)
	putInt32(int32(len(b.publics)))
	for _, pub := range b.publics {
		putInt32(pub.NameOffset)
		putInt32(pub.CodeOffset)
	}
	out = append(out, b.strings...)
	out = append(out, b.code...)
	return out
}
