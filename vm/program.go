package vm

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ---------------------------------------------------------------------------
// Program: loaded bytecode image
// ---------------------------------------------------------------------------

// headerSize is the fixed prefix of the image: three i32 lengths.
const headerSize = 12

// publicSize is one publics-table record: {name_offset, code_offset}.
const publicSize = 8

// Public is one entry of the publics table: a name offset into the string
// table and a code offset into the code section.
type Public struct {
	NameOffset int32
	CodeOffset int32
}

// Program is a parsed bytecode image. The slices alias the backing buffer,
// which the Program owns for its lifetime.
type Program struct {
	StringTableLength int32
	GlobalsLength     int32
	PublicsLength     int32

	Publics     []Public
	StringTable []byte
	Code        []byte

	bytes []byte
}

// LoadError reports a structurally invalid image. Content-level validation
// is the verifier's job; the loader never walks the code section.
type LoadError struct {
	Msg string
}

func (e *LoadError) Error() string {
	return e.Msg
}

// Load parses and validates a bytecode image. The layout is little-endian
// and packed: header, publics table, string table, code section.
func Load(data []byte) (*Program, error) {
	if len(data) < headerSize {
		return nil, &LoadError{Msg: "File is too small"}
	}

	p := &Program{
		StringTableLength: int32(binary.LittleEndian.Uint32(data[0:])),
		GlobalsLength:     int32(binary.LittleEndian.Uint32(data[4:])),
		PublicsLength:     int32(binary.LittleEndian.Uint32(data[8:])),
		bytes:             data,
	}

	if p.StringTableLength < 0 || p.GlobalsLength < 0 || p.PublicsLength < 0 {
		return nil, &LoadError{Msg: "Invalid header"}
	}

	expected := int64(headerSize) + int64(p.PublicsLength)*publicSize + int64(p.StringTableLength)
	if int64(len(data)) <= expected {
		return nil, &LoadError{Msg: "File is too small or header is invalid"}
	}

	p.Publics = make([]Public, p.PublicsLength)
	for i := int32(0); i < p.PublicsLength; i++ {
		off := headerSize + i*publicSize
		pub := Public{
			NameOffset: int32(binary.LittleEndian.Uint32(data[off:])),
			CodeOffset: int32(binary.LittleEndian.Uint32(data[off+4:])),
		}
		if pub.NameOffset < 0 || pub.CodeOffset < 0 {
			return nil, &LoadError{Msg: "Unexpected negative value in pubs table"}
		}
		p.Publics[i] = pub
	}

	stOffset := headerSize + int(p.PublicsLength)*publicSize
	p.StringTable = data[stOffset : stOffset+int(p.StringTableLength)]

	codeOffset := stOffset + int(p.StringTableLength)
	p.Code = data[codeOffset:]
	if len(p.Code) == 0 {
		return nil, &LoadError{Msg: "Empty code section"}
	}

	return p, nil
}

// StringAt returns the NUL-terminated string-table entry starting at the
// given offset.
func (p *Program) StringAt(off int32) (string, error) {
	if off < 0 || int(off) >= len(p.StringTable) {
		return "", fmt.Errorf("string table offset %d out of range", off)
	}
	rest := p.StringTable[off:]
	if i := bytes.IndexByte(rest, 0); i >= 0 {
		rest = rest[:i]
	}
	return string(rest), nil
}

// PublicName resolves a publics-table entry's name.
func (p *Program) PublicName(pub Public) string {
	s, err := p.StringAt(pub.NameOffset)
	if err != nil {
		return "?"
	}
	return s
}
