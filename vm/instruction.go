package vm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode is the one-byte instruction tag.
type Opcode byte

// Arithmetic, comparison, logic
const (
	OpAdd Opcode = 0x01
	OpSub Opcode = 0x02
	OpMul Opcode = 0x03
	OpDiv Opcode = 0x04
	OpRem Opcode = 0x05
	OpLss Opcode = 0x06
	OpLeq Opcode = 0x07
	OpGre Opcode = 0x08
	OpGeq Opcode = 0x09
	OpEqu Opcode = 0x0A
	OpNeq Opcode = 0x0B
	OpAnd Opcode = 0x0C
	OpOr  Opcode = 0x0D
)

// Constants, aggregates, control
const (
	OpConst  Opcode = 0x10
	OpString Opcode = 0x11
	OpSexp   Opcode = 0x12
	OpSti    Opcode = 0x13
	OpSta    Opcode = 0x14
	OpJmp    Opcode = 0x15
	OpEnd    Opcode = 0x16
	OpRet    Opcode = 0x17
	OpDrop   Opcode = 0x18
	OpDup    Opcode = 0x19
	OpSwap   Opcode = 0x1A
	OpElem   Opcode = 0x1B
)

// Loads
const (
	OpLdG Opcode = 0x20
	OpLdL Opcode = 0x21
	OpLdA Opcode = 0x22
	OpLdC Opcode = 0x23
)

// Load-reference variants (reserved, unused in current instruction sets)
const (
	OpLdGR Opcode = 0x30
	OpLdLR Opcode = 0x31
	OpLdAR Opcode = 0x32
	OpLdCR Opcode = 0x33
)

// Stores
const (
	OpStG  Opcode = 0x40
	OpStL  Opcode = 0x41
	OpStA_ Opcode = 0x42
	OpStC  Opcode = 0x43
)

// Control flow, functions, pattern support
const (
	OpCJmpZ   Opcode = 0x50
	OpCJmpNZ  Opcode = 0x51
	OpBegin   Opcode = 0x52
	OpCBegin  Opcode = 0x53
	OpClosure Opcode = 0x54
	OpCallC   Opcode = 0x55
	OpCall    Opcode = 0x56
	OpTag     Opcode = 0x57
	OpArray   Opcode = 0x58
	OpFail    Opcode = 0x59
	OpLine    Opcode = 0x5A
)

// Pattern queries
const (
	OpPattEq       Opcode = 0x60
	OpPattIsString Opcode = 0x61
	OpPattIsArray  Opcode = 0x62
	OpPattIsSexp   Opcode = 0x63
	OpPattIsRef    Opcode = 0x64
	OpPattIsVal    Opcode = 0x65
	OpPattIsFun    Opcode = 0x66
)

// Builtins
const (
	OpCallLread   Opcode = 0x70
	OpCallLwrite  Opcode = 0x71
	OpCallLlength Opcode = 0x72
	OpCallLstring Opcode = 0x73
	OpCallBarray  Opcode = 0x74
)

// OpcodeInfo is the fixed per-opcode metadata: display name, fixed i32
// argument count, and which arguments render in hexadecimal.
type OpcodeInfo struct {
	Name       string
	ArgsLength int
	HexArg0    bool
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpAdd: {"ADD", 0, false},
	OpSub: {"SUB", 0, false},
	OpMul: {"MUL", 0, false},
	OpDiv: {"DIV", 0, false},
	OpRem: {"REM", 0, false},
	OpLss: {"LSS", 0, false},
	OpLeq: {"LEQ", 0, false},
	OpGre: {"GRE", 0, false},
	OpGeq: {"GEQ", 0, false},
	OpEqu: {"EQU", 0, false},
	OpNeq: {"NEQ", 0, false},
	OpAnd: {"AND", 0, false},
	OpOr:  {"OR", 0, false},

	OpConst:  {"CONST", 1, false},
	OpString: {"STRING", 1, true},
	OpSexp:   {"SEXP", 2, true},
	OpSti:    {"STI", 0, false},
	OpSta:    {"STA", 0, false},
	OpJmp:    {"JMP", 1, true},
	OpEnd:    {"END", 0, false},
	OpRet:    {"RET", 0, false},
	OpDrop:   {"DROP", 0, false},
	OpDup:    {"DUP", 0, false},
	OpSwap:   {"SWAP", 0, false},
	OpElem:   {"ELEM", 0, false},

	OpLdG: {"LDG", 1, false},
	OpLdL: {"LDL", 1, false},
	OpLdA: {"LDA", 1, false},
	OpLdC: {"LDC", 1, false},

	OpLdGR: {"LDGR", 1, false},
	OpLdLR: {"LDLR", 1, false},
	OpLdAR: {"LDAR", 1, false},
	OpLdCR: {"LDCR", 1, false},

	OpStG:  {"STG", 1, false},
	OpStL:  {"STL", 1, false},
	OpStA_: {"STA_", 1, false},
	OpStC:  {"STC", 1, false},

	OpCJmpZ:   {"CJMPZ", 1, true},
	OpCJmpNZ:  {"CJMPNZ", 1, true},
	OpBegin:   {"BEGIN", 2, false},
	OpCBegin:  {"CBEGIN", 2, false},
	OpClosure: {"CLOSURE", 2, true},
	OpCallC:   {"CALLC", 1, false},
	OpCall:    {"CALL", 2, true},
	OpTag:     {"TAG", 2, true},
	OpArray:   {"ARRAY", 1, false},
	OpFail:    {"FAIL", 2, false},
	OpLine:    {"LINE", 1, false},

	OpPattEq:       {"PATT_eq", 0, false},
	OpPattIsString: {"PATT_is_string", 0, false},
	OpPattIsArray:  {"PATT_is_array", 0, false},
	OpPattIsSexp:   {"PATT_is_sexp", 0, false},
	OpPattIsRef:    {"PATT_is_ref", 0, false},
	OpPattIsVal:    {"PATT_is_val", 0, false},
	OpPattIsFun:    {"PATT_is_fun", 0, false},

	OpCallLread:   {"CALL_Lread", 0, false},
	OpCallLwrite:  {"CALL_Lwrite", 0, false},
	OpCallLlength: {"CALL_Llength", 0, false},
	OpCallLstring: {"CALL_Lstring", 0, false},
	OpCallBarray:  {"CALL_Barray", 1, false},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() (OpcodeInfo, bool) {
	info, ok := opcodeTable[op]
	return info, ok
}

// Name returns the mnemonic, or UNK for an unknown byte.
func (op Opcode) Name() string {
	if info, ok := opcodeTable[op]; ok {
		return info.Name
	}
	return "UNK"
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// ---------------------------------------------------------------------------
// Instruction view
// ---------------------------------------------------------------------------

// CaptureKind classifies a closure capture descriptor.
type CaptureKind byte

const (
	CaptureGlobal   CaptureKind = 0
	CaptureLocal    CaptureKind = 1
	CaptureArg      CaptureKind = 2
	CaptureCaptured CaptureKind = 3
)

func (k CaptureKind) String() string {
	switch k {
	case CaptureGlobal:
		return "G"
	case CaptureLocal:
		return "L"
	case CaptureArg:
		return "A"
	case CaptureCaptured:
		return "C"
	}
	return "?"
}

// Capture is one closure capture descriptor: a kind byte and an index.
type Capture struct {
	Kind  CaptureKind
	Index int32
}

// Instruction is a decoded view of one instruction at a byte offset into
// the code section. Decoding reads the tag, the fixed arguments and, for
// CLOSURE, the variable capture tail.
type Instruction struct {
	Tag      Opcode
	Args     [2]int32
	Offset   int32
	captures []Capture
}

// captureSize is one trailing capture descriptor: kind byte + i32 index.
const captureSize = 5

// Decode reads the instruction starting at offset. It fails on an unknown
// opcode byte or when the instruction would overrun the code section.
func Decode(code []byte, offset int32) (Instruction, error) {
	if offset < 0 || int(offset) >= len(code) {
		return Instruction{}, fmt.Errorf("instruction offset %d outside of code", offset)
	}
	ins := Instruction{Tag: Opcode(code[offset]), Offset: offset}
	info, ok := ins.Tag.Info()
	if !ok {
		return Instruction{}, fmt.Errorf("unknown instruction 0x%02x at offset 0x%x", code[offset], offset)
	}

	p := int(offset) + 1
	for i := 0; i < info.ArgsLength; i++ {
		if p+4 > len(code) {
			return Instruction{}, fmt.Errorf("instruction at offset 0x%x overruns code section", offset)
		}
		ins.Args[i] = int32(binary.LittleEndian.Uint32(code[p:]))
		p += 4
	}

	if ins.Tag == OpClosure {
		n := ins.Args[1]
		if n < 0 {
			return Instruction{}, fmt.Errorf("negative capture count at offset 0x%x", offset)
		}
		if p+int(n)*captureSize > len(code) {
			return Instruction{}, fmt.Errorf("instruction at offset 0x%x overruns code section", offset)
		}
		ins.captures = make([]Capture, n)
		for i := int32(0); i < n; i++ {
			ins.captures[i] = Capture{
				Kind:  CaptureKind(code[p]),
				Index: int32(binary.LittleEndian.Uint32(code[p+1:])),
			}
			p += captureSize
		}
	}

	return ins, nil
}

// ArgsLength is the fixed i32 argument count for this instruction.
func (ins Instruction) ArgsLength() int {
	info, _ := ins.Tag.Info()
	return info.ArgsLength
}

// IsHexArg reports whether argument i displays in hexadecimal.
func (ins Instruction) IsHexArg(i int) bool {
	info, _ := ins.Tag.Info()
	return i == 0 && info.HexArg0
}

// IsClosure reports whether the instruction carries a capture tail.
func (ins Instruction) IsClosure() bool {
	return ins.Tag == OpClosure
}

// Captures returns the decoded capture descriptors of a CLOSURE.
func (ins Instruction) Captures() []Capture {
	return ins.captures
}

// Size is the in-memory byte size: tag, fixed arguments, capture tail.
func (ins Instruction) Size() int32 {
	n := int32(1 + 4*ins.ArgsLength())
	if ins.IsClosure() {
		n += captureSize * ins.Args[1]
	}
	return n
}

// Next decodes the immediately following instruction, or ok=false when
// the current one ends the code section.
func (ins Instruction) Next(code []byte) (Instruction, bool, error) {
	next := ins.Offset + ins.Size()
	if int(next) >= len(code) {
		return Instruction{}, false, nil
	}
	n, err := Decode(code, next)
	if err != nil {
		return Instruction{}, false, err
	}
	return n, true, nil
}

// Popped is the number of operand-stack slots the instruction consumes.
func (ins Instruction) Popped() int32 {
	switch ins.Tag {
	case OpAdd, OpSub, OpMul, OpDiv, OpRem, OpLss, OpLeq, OpGre, OpGeq, OpEqu, OpNeq, OpAnd, OpOr:
		return 2
	case OpConst, OpString:
		return 0
	case OpSexp:
		return ins.Args[1]
	case OpSti:
		return 2
	case OpSta:
		return 3
	case OpJmp:
		return 0
	case OpEnd, OpRet, OpDrop, OpDup:
		return 1
	case OpSwap, OpElem:
		return 2
	case OpLdG, OpLdL, OpLdA, OpLdC, OpLdGR, OpLdLR, OpLdAR, OpLdCR:
		return 0
	case OpStG, OpStL, OpStA_, OpStC, OpCJmpZ, OpCJmpNZ:
		return 1
	case OpBegin, OpCBegin, OpClosure:
		return 0
	case OpCallC:
		return ins.Args[0] + 1
	case OpCall:
		return ins.Args[1]
	case OpTag, OpArray, OpFail:
		return 1
	case OpLine:
		return 0
	case OpPattEq:
		return 2
	case OpPattIsString, OpPattIsArray, OpPattIsSexp, OpPattIsRef, OpPattIsVal, OpPattIsFun:
		return 1
	case OpCallLread:
		return 0
	case OpCallLwrite, OpCallLlength, OpCallLstring:
		return 1
	case OpCallBarray:
		return ins.Args[0]
	}
	return 0
}

// Pushed is the number of operand-stack slots the instruction produces.
func (ins Instruction) Pushed() int32 {
	switch ins.Tag {
	case OpAdd, OpSub, OpMul, OpDiv, OpRem, OpLss, OpLeq, OpGre, OpGeq, OpEqu, OpNeq, OpAnd, OpOr,
		OpConst, OpString, OpSexp, OpSti, OpSta:
		return 1
	case OpJmp:
		return 0
	case OpEnd, OpRet:
		return 1
	case OpDrop:
		return 0
	case OpDup, OpSwap:
		return 2
	case OpElem, OpLdG, OpLdL, OpLdA, OpLdC, OpLdGR, OpLdLR, OpLdAR, OpLdCR,
		OpStG, OpStL, OpStA_, OpStC:
		return 1
	case OpCJmpZ, OpCJmpNZ, OpBegin, OpCBegin:
		return 0
	case OpClosure, OpCallC, OpCall, OpTag, OpArray:
		return 1
	case OpFail, OpLine:
		return 0
	case OpPattEq, OpPattIsString, OpPattIsArray, OpPattIsSexp, OpPattIsRef, OpPattIsVal, OpPattIsFun,
		OpCallLread, OpCallLwrite, OpCallLlength, OpCallLstring, OpCallBarray:
		return 1
	}
	return 0
}

// Diff is the net operand-stack depth effect.
func (ins Instruction) Diff() int32 {
	return ins.Pushed() - ins.Popped()
}

// String renders the instruction: mnemonic, arguments (hexadecimal where
// the display table says so), and capture descriptors for CLOSURE.
func (ins Instruction) String() string {
	var b strings.Builder
	b.WriteString(ins.Tag.Name())
	for i := 0; i < ins.ArgsLength(); i++ {
		if ins.IsHexArg(i) {
			fmt.Fprintf(&b, " 0x%x", ins.Args[i])
		} else {
			fmt.Fprintf(&b, " %d", ins.Args[i])
		}
	}
	for _, c := range ins.captures {
		fmt.Fprintf(&b, " %s(%d)", c.Kind, c.Index)
	}
	return b.String()
}
