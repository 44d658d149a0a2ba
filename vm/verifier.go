package vm

import (
	"encoding/binary"
)

// ---------------------------------------------------------------------------
// Verifier: abstract interpretation of operand-stack depth
// ---------------------------------------------------------------------------

// fnHeader is the verifier's view of one BEGIN/CBEGIN function entry. The
// computed maximum operand-stack depth is written back into the high 16
// bits of the header's second argument word; the locals count stays in
// the low 16.
type fnHeader struct {
	offset   int32
	args     int32
	locals   int32
	maxDepth int32
}

// workItem is one pending walk: an instruction offset, the operand-stack
// depth on entry, and the function whose body the offset belongs to.
type workItem struct {
	offset int32
	depth  int32
	header *fnHeader
}

type verifier struct {
	prog    *Program
	depth   []int32 // recorded depth per code offset, -1 when unset
	headers map[int32]*fnHeader
	work    []workItem
}

// Verify proves that every reachable instruction sees a unique
// operand-stack depth, that index arguments stay inside their tables, and
// computes each function's maximum stack depth, annotating it into the
// function header. Entry points are all publics; every BEGIN/CBEGIN
// reachable from them is verified.
func Verify(p *Program) error {
	v := &verifier{
		prog:    p,
		depth:   make([]int32, len(p.Code)),
		headers: make(map[int32]*fnHeader),
	}
	for i := range v.depth {
		v.depth[i] = -1
	}

	if len(p.Publics) == 0 {
		return &VerifyError{IP: 0, Msg: "Entry point not found"}
	}
	for _, pub := range p.Publics {
		h, err := v.headerAt(pub.CodeOffset)
		if err != nil {
			return &VerifyError{IP: pub.CodeOffset, Msg: "Entry point not found"}
		}
		v.work = append(v.work, workItem{offset: pub.CodeOffset, depth: 0, header: h})
	}

	for len(v.work) > 0 {
		item := v.work[len(v.work)-1]
		v.work = v.work[:len(v.work)-1]
		if err := v.walk(item); err != nil {
			return err
		}
	}

	for _, h := range v.headers {
		packed := uint32(h.locals&0xFFFF) | uint32(h.maxDepth)<<16
		binary.LittleEndian.PutUint32(p.Code[h.offset+5:], packed)
	}
	return nil
}

// headerAt returns the function header starting at the offset, decoding
// it on first sight. Non-BEGIN targets are rejected.
func (v *verifier) headerAt(off int32) (*fnHeader, error) {
	if h, ok := v.headers[off]; ok {
		return h, nil
	}
	ins, err := Decode(v.prog.Code, off)
	if err != nil {
		return nil, err
	}
	if ins.Tag != OpBegin && ins.Tag != OpCBegin {
		return nil, &VerifyError{IP: off, Msg: "Call target is not a function"}
	}
	h := &fnHeader{
		offset: off,
		args:   ins.Args[0],
		locals: ins.Args[1] & 0xFFFF,
	}
	v.headers[off] = h
	return h, nil
}

// walk pursues straight-line flow from one work item until the walk
// terminates or reaches an already-verified join.
func (v *verifier) walk(item workItem) error {
	off, depth, header := item.offset, item.depth, item.header

	for {
		ins, err := Decode(v.prog.Code, off)
		if err != nil {
			return &VerifyError{IP: off, Msg: err.Error()}
		}

		if recorded := v.depth[off]; recorded >= 0 {
			if ins.Tag == OpEnd || ins.Tag == OpRet {
				return nil
			}
			if recorded != depth {
				return &VerifyError{IP: off, Msg: "Stack size mismatch"}
			}
			return nil
		}
		v.depth[off] = depth

		if err := v.checkArgs(ins); err != nil {
			return err
		}

		if depth < ins.Popped() {
			return &VerifyError{IP: off, Msg: "Insufficient stack size for operation"}
		}
		depth = depth - ins.Popped() + ins.Pushed()
		if depth > header.maxDepth {
			header.maxDepth = depth
		}

		if err := v.checkAccess(ins, header); err != nil {
			return err
		}

		switch ins.Tag {
		case OpJmp:
			off = ins.Args[0]
			continue
		case OpCJmpZ, OpCJmpNZ:
			v.work = append(v.work, workItem{offset: ins.Args[0], depth: depth, header: header})
		case OpCall:
			callee, err := v.headerAt(ins.Args[0])
			if err != nil {
				return err
			}
			v.work = append(v.work, workItem{offset: ins.Args[0], depth: 0, header: callee})
		case OpClosure:
			callee, err := v.headerAt(ins.Args[0])
			if err != nil {
				return err
			}
			v.work = append(v.work, workItem{offset: ins.Args[0], depth: 0, header: callee})
			for _, c := range ins.Captures() {
				if err := v.checkCapture(ins.Offset, c, header); err != nil {
					return err
				}
			}
		case OpEnd, OpRet, OpFail:
			return nil
		}

		off = ins.Offset + ins.Size()
		if int(off) >= len(v.prog.Code) {
			return &VerifyError{IP: ins.Offset, Msg: "Unexpected end of code"}
		}
	}
}

// checkArgs enforces the non-negativity rule: every fixed argument must
// be non-negative, except CONST's literal.
func (v *verifier) checkArgs(ins Instruction) error {
	if ins.Tag == OpConst {
		return nil
	}
	for i := 0; i < ins.ArgsLength(); i++ {
		if ins.Args[i] < 0 {
			return &VerifyError{IP: ins.Offset, Msg: "Unexpected negative argument"}
		}
	}
	return nil
}

// checkAccess bounds-checks index arguments against their tables:
// globals, locals, arguments, the string table and the code section.
// Captured-slot indices cannot be checked statically.
func (v *verifier) checkAccess(ins Instruction, header *fnHeader) error {
	switch ins.Tag {
	case OpLdG, OpStG:
		if ins.Args[0] >= v.prog.GlobalsLength {
			return &VerifyError{IP: ins.Offset, Msg: "Global index out of range"}
		}
	case OpLdL, OpStL:
		if ins.Args[0] >= header.locals {
			return &VerifyError{IP: ins.Offset, Msg: "Local index out of range"}
		}
	case OpLdA, OpStA_:
		if ins.Args[0] >= header.args {
			return &VerifyError{IP: ins.Offset, Msg: "Argument index out of range"}
		}
	case OpString, OpSexp, OpTag:
		if ins.Args[0] >= v.prog.StringTableLength {
			return &VerifyError{IP: ins.Offset, Msg: "String table offset out of range"}
		}
	case OpJmp, OpCJmpZ, OpCJmpNZ, OpCall, OpClosure:
		if int(ins.Args[0]) >= len(v.prog.Code) {
			return &VerifyError{IP: ins.Offset, Msg: "Jump target outside of code"}
		}
	}
	return nil
}

// checkCapture validates one closure capture descriptor against the
// capturing function's regions.
func (v *verifier) checkCapture(ip int32, c Capture, header *fnHeader) error {
	if c.Index < 0 {
		return &VerifyError{IP: ip, Msg: "Unexpected negative argument"}
	}
	switch c.Kind {
	case CaptureGlobal:
		if c.Index >= v.prog.GlobalsLength {
			return &VerifyError{IP: ip, Msg: "Global index out of range"}
		}
	case CaptureLocal:
		if c.Index >= header.locals {
			return &VerifyError{IP: ip, Msg: "Local index out of range"}
		}
	case CaptureArg:
		if c.Index >= header.args {
			return &VerifyError{IP: ip, Msg: "Argument index out of range"}
		}
	case CaptureCaptured:
		// Outer capture depth is not known statically.
	default:
		return &VerifyError{IP: ip, Msg: "Unknown capture kind"}
	}
	return nil
}
