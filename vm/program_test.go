package vm

import (
	"testing"
)

// buildMinimal returns an image with one public and a one-byte code
// section.
func buildMinimal() []byte {
	b := NewProgramBuilder()
	b.Public("main")
	b.Emit(OpAdd)
	return b.Build()
}

func TestLoadMinimalImage(t *testing.T) {
	p, err := Load(buildMinimal())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.PublicsLength != 1 {
		t.Errorf("PublicsLength = %d, want 1", p.PublicsLength)
	}
	if got := p.PublicName(p.Publics[0]); got != "main" {
		t.Errorf("public name = %q, want main", got)
	}
	if len(p.Code) != 1 || Opcode(p.Code[0]) != OpAdd {
		t.Errorf("code section = %v, want [ADD]", p.Code)
	}
}

func TestLoadRejectsTooSmallFile(t *testing.T) {
	_, err := Load([]byte{1, 2, 3})
	if err == nil {
		t.Fatal("Load accepted a truncated header")
	}
	if _, ok := err.(*LoadError); !ok {
		t.Errorf("error type = %T, want *LoadError", err)
	}
}

func TestLoadRejectsNegativeHeaderLengths(t *testing.T) {
	img := buildMinimal()
	// Corrupt globals_length to a negative value.
	img[4], img[5], img[6], img[7] = 0xFF, 0xFF, 0xFF, 0xFF
	_, err := Load(img)
	if err == nil || err.Error() != "Invalid header" {
		t.Errorf("err = %v, want Invalid header", err)
	}
}

func TestLoadRejectsEmptyCodeSection(t *testing.T) {
	b := NewProgramBuilder()
	b.Public("main")
	img := b.Build()
	_, err := Load(img)
	if err == nil {
		t.Fatal("Load accepted an empty code section")
	}
}

func TestLoadRejectsNegativePublicOffsets(t *testing.T) {
	img := buildMinimal()
	// Corrupt the public's code offset.
	img[16], img[17], img[18], img[19] = 0xFF, 0xFF, 0xFF, 0xFF
	_, err := Load(img)
	if err == nil || err.Error() != "Unexpected negative value in pubs table" {
		t.Errorf("err = %v, want pubs table rejection", err)
	}
}

func TestLoadRejectsOverlongHeaderClaims(t *testing.T) {
	img := buildMinimal()
	// Claim a string table far beyond the file size.
	img[0], img[1] = 0xFF, 0x7F
	_, err := Load(img)
	if err == nil {
		t.Fatal("Load accepted a header claiming more bytes than present")
	}
}

func TestStringAt(t *testing.T) {
	b := NewProgramBuilder()
	first := b.String("hello")
	second := b.String("world")
	b.Public("main")
	b.Emit(OpAdd)
	p, err := Load(b.Build())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if s, err := p.StringAt(first); err != nil || s != "hello" {
		t.Errorf("StringAt(first) = %q, %v", s, err)
	}
	if s, err := p.StringAt(second); err != nil || s != "world" {
		t.Errorf("StringAt(second) = %q, %v", s, err)
	}
	if _, err := p.StringAt(1000); err == nil {
		t.Error("StringAt accepted an out-of-range offset")
	}
}
