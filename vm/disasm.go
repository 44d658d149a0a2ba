package vm

import (
	"fmt"
	"io"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// Disassemble writes a listing of the program's code section: one line
// per instruction, hexadecimal offset first. It stops with an error on an
// unknown opcode or an instruction overrunning the section.
func Disassemble(p *Program, w io.Writer) error {
	for off := int32(0); int(off) < len(p.Code); {
		ins, err := Decode(p.Code, off)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%x %s\n", ins.Offset, ins); err != nil {
			return err
		}
		off += ins.Size()
	}
	return nil
}
