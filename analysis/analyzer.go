// Package analysis implements the bytecode idiom scanner: a reachability
// walk over a loaded program followed by unigram/bigram opcode-sequence
// frequency counting within basic blocks.
package analysis

import (
	"fmt"
	"io"
	"sort"

	"github.com/DarkHole1/lama-byterun/vm"
)

// Idiom is one counted opcode sequence: a single instruction or a pair
// of adjacent instructions inside a reachable straight-line run.
type Idiom struct {
	Offset int32  // first occurrence in the code section
	Width  int    // instructions in the sequence: 1 or 2
	Count  int64  // occurrences over all reachable runs
	Bytes  []byte // raw encoded sequence
	Text   string // rendered sequence
}

// Report holds the scanner's output: unigram and bigram idiom lists,
// each descending by count.
type Report struct {
	Program  string
	Unigrams []Idiom
	Bigrams  []Idiom
}

type analyzer struct {
	prog     *vm.Program
	visited  []bool
	boundary []bool

	unigrams map[string]*Idiom
	bigrams  map[string]*Idiom
}

// Analyze runs the reachability walk from every public entry and counts
// idiom frequencies over the reachable, non-boundary-broken runs.
func Analyze(p *vm.Program) (*Report, error) {
	a := &analyzer{
		prog:     p,
		visited:  make([]bool, len(p.Code)),
		boundary: make([]bool, len(p.Code)),
		unigrams: make(map[string]*Idiom),
		bigrams:  make(map[string]*Idiom),
	}
	if err := a.mark(); err != nil {
		return nil, err
	}
	if err := a.count(); err != nil {
		return nil, err
	}
	return a.report(), nil
}

// mark flood-fills the visited bitvector from every public and records
// boundary offsets: jumps and their targets, returns, match failures,
// and the instruction following a call.
func (a *analyzer) mark() error {
	code := a.prog.Code
	var stack []int32

	for _, pub := range a.prog.Publics {
		if int(pub.CodeOffset) >= len(code) {
			return fmt.Errorf("public symbol points outside of code")
		}
		if a.visited[pub.CodeOffset] {
			continue
		}
		stack = append(stack, pub.CodeOffset)
		a.visited[pub.CodeOffset] = true
		a.boundary[pub.CodeOffset] = true
	}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

	walk:
		for {
			ins, err := vm.Decode(code, cur)
			if err != nil {
				return err
			}

			var next int32
			switch ins.Tag {
			case vm.OpJmp:
				target := ins.Args[0]
				if target < 0 || int(target) >= len(code) {
					return fmt.Errorf("branch target outside of code at offset 0x%x", cur)
				}
				a.boundary[cur] = true
				a.boundary[target] = true
				next = target

			case vm.OpEnd, vm.OpRet, vm.OpFail:
				a.boundary[cur] = true
				break walk

			case vm.OpCall, vm.OpCJmpZ, vm.OpCJmpNZ, vm.OpClosure:
				target := ins.Args[0]
				if target < 0 || int(target) >= len(code) {
					return fmt.Errorf("branch target outside of code at offset 0x%x", cur)
				}
				if !a.visited[target] {
					stack = append(stack, target)
					a.visited[target] = true
				}
				next = cur + ins.Size()
				if ins.Tag == vm.OpCall && int(next) < len(code) {
					// Straight-line flow does not continue across a call site.
					a.boundary[next] = true
				}

			default:
				next = cur + ins.Size()
			}

			if int(next) >= len(code) {
				break walk
			}
			if a.visited[next] {
				break walk
			}
			a.visited[next] = true
			cur = next
		}
	}
	return nil
}

// count scans the code section linearly, tallying unigrams for every
// visited instruction and bigrams for adjacent visited pairs that no
// boundary separates. Sequence identity is the encoded byte range, which
// coincides with structural equality of the decoded instructions.
func (a *analyzer) count() error {
	code := a.prog.Code
	prev := int32(-1)

	for off := int32(0); int(off) < len(code); {
		if !a.visited[off] {
			prev = -1
			if ins, err := vm.Decode(code, off); err == nil {
				off += ins.Size()
			} else {
				off++
			}
			continue
		}

		ins, err := vm.Decode(code, off)
		if err != nil {
			return err
		}
		size := ins.Size()

		a.add(a.unigrams, off, 1, code[off:off+size])
		if prev >= 0 {
			a.add(a.bigrams, prev, 2, code[prev:off+size])
		}

		if a.boundary[off] {
			prev = -1
		} else {
			prev = off
		}
		off += size
	}
	return nil
}

func (a *analyzer) add(m map[string]*Idiom, off int32, width int, seq []byte) {
	key := string(seq)
	if e, ok := m[key]; ok {
		e.Count++
		return
	}
	m[key] = &Idiom{
		Offset: off,
		Width:  width,
		Count:  1,
		Bytes:  append([]byte(nil), seq...),
	}
}

func (a *analyzer) report() *Report {
	rep := &Report{}
	rep.Unigrams = a.flatten(a.unigrams)
	rep.Bigrams = a.flatten(a.bigrams)
	return rep
}

func (a *analyzer) flatten(m map[string]*Idiom) []Idiom {
	out := make([]Idiom, 0, len(m))
	for _, e := range m {
		e.Text = a.render(e)
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Offset < out[j].Offset
	})
	return out
}

func (a *analyzer) render(e *Idiom) string {
	ins, err := vm.Decode(a.prog.Code, e.Offset)
	if err != nil {
		return "?"
	}
	text := ins.String()
	if e.Width == 2 {
		second, err := vm.Decode(a.prog.Code, e.Offset+ins.Size())
		if err != nil {
			return text + "; ?"
		}
		text += "; " + second.String()
	}
	return text
}

// Write renders the report the way the CLI prints it: one merged list
// descending by count, bigrams winning ties.
func (r *Report) Write(w io.Writer) error {
	if _, err := fmt.Fprintln(w, "Instructions sorted by occurencies:"); err != nil {
		return err
	}
	i, j := 0, 0
	for i < len(r.Unigrams) || j < len(r.Bigrams) {
		var e Idiom
		switch {
		case j >= len(r.Bigrams):
			e = r.Unigrams[i]
			i++
		case i >= len(r.Unigrams):
			e = r.Bigrams[j]
			j++
		case r.Unigrams[i].Count > r.Bigrams[j].Count:
			e = r.Unigrams[i]
			i++
		default:
			e = r.Bigrams[j]
			j++
		}
		if _, err := fmt.Fprintf(w, "%d %s\n", e.Count, e.Text); err != nil {
			return err
		}
	}
	return nil
}
