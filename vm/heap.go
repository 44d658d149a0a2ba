package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Heap: typed allocation arena with mark-sweep collection
// ---------------------------------------------------------------------------

// ObjectKind discriminates the four heap object shapes.
type ObjectKind byte

const (
	KindString ObjectKind = iota
	KindArray
	KindSexp
	KindClosure
)

func (k ObjectKind) String() string {
	switch k {
	case KindString:
		return "STRING"
	case KindArray:
		return "ARRAY"
	case KindSexp:
		return "SEXP"
	case KindClosure:
		return "CLOSURE"
	}
	return "UNKNOWN"
}

// object is one heap cell. Arrays, sexps and closures store word payloads;
// strings store a byte payload. Sexps additionally carry an interned tag.
// Closure slot 0 holds a raw code offset and is skipped by the marker.
type object struct {
	kind  ObjectKind
	tag   int32
	words []Value
	bytes []byte

	live   bool
	marked bool
}

// Heap owns every runtime object. Objects are addressed by stable arena
// indices, so references remain valid across collections. The collector
// roots every word of the registered stack window, then traces word
// payloads transitively.
type Heap struct {
	objects []object
	free    []int32
	alloced int
	limit   int

	// Shadow root window: stack[stackTop:stackBottom] at every
	// allocation point holds exactly the live root slots.
	stack       []Value
	stackTop    int
	stackBottom int

	tags     map[string]int32
	tagNames []string
}

// gcInitialLimit is the live-object count that triggers the first
// collection; the limit doubles whenever a collection fails to halve
// the population.
const gcInitialLimit = 1024

// NewHeap creates a heap rooted in the given operand-stack slab. The top
// of the root window is fixed at slot 0 for the heap's lifetime; the
// bottom must be kept current via SetStackBottom.
func NewHeap(stack []Value) *Heap {
	return &Heap{
		limit: gcInitialLimit,
		stack: stack,
		tags:  make(map[string]int32),
	}
}

// SetStackBottom registers the current one-past-top stack index. Every
// push and pop must route through this before the next allocation.
func (h *Heap) SetStackBottom(sp int) {
	h.stackBottom = sp
}

// Intern returns the stable integer tag for a string. Equal strings
// always intern to the same tag within a heap's lifetime.
func (h *Heap) Intern(s string) int32 {
	if t, ok := h.tags[s]; ok {
		return t
	}
	t := int32(len(h.tagNames))
	h.tags[s] = t
	h.tagNames = append(h.tagNames, s)
	return t
}

// TagName recovers the string for an interned tag.
func (h *Heap) TagName(t int32) string {
	if t < 0 || int(t) >= len(h.tagNames) {
		return "?"
	}
	return h.tagNames[t]
}

func (h *Heap) alloc(obj object) Value {
	if h.alloced >= h.limit {
		h.collect()
		if h.alloced*2 >= h.limit {
			h.limit *= 2
		}
	}
	obj.live = true
	h.alloced++
	if n := len(h.free); n > 0 {
		idx := h.free[n-1]
		h.free = h.free[:n-1]
		h.objects[idx] = obj
		return ref(idx)
	}
	h.objects = append(h.objects, obj)
	return ref(int32(len(h.objects) - 1))
}

// AllocString allocates a string of n bytes, zero-filled.
func (h *Heap) AllocString(n int) Value {
	return h.alloc(object{kind: KindString, bytes: make([]byte, n)})
}

// AllocArray allocates an array of n word slots, zero-filled.
func (h *Heap) AllocArray(n int) Value {
	return h.alloc(object{kind: KindArray, words: make([]Value, n)})
}

// AllocSexp allocates an S-expression of arity n with an unset tag.
func (h *Heap) AllocSexp(n int) Value {
	return h.alloc(object{kind: KindSexp, words: make([]Value, n)})
}

// AllocClosure allocates a closure of n word slots. Slot 0 is the code
// offset, the rest are captured values.
func (h *Heap) AllocClosure(n int) Value {
	return h.alloc(object{kind: KindClosure, words: make([]Value, n)})
}

func (h *Heap) obj(v Value) *object {
	idx := v.index()
	if idx < 0 || int(idx) >= len(h.objects) || !h.objects[idx].live {
		panic(fmt.Sprintf("heap: dangling reference %#x", int32(v)))
	}
	return &h.objects[idx]
}

// Kind returns the object kind behind a reference.
func (h *Heap) Kind(v Value) ObjectKind {
	return h.obj(v).kind
}

// IsObject reports whether v is a reference to a live object of the
// given kind. Unboxed words and stale references answer false.
func (h *Heap) IsObject(v Value, kind ObjectKind) bool {
	if !v.IsRef() {
		return false
	}
	idx := v.index()
	if idx < 0 || int(idx) >= len(h.objects) || !h.objects[idx].live {
		return false
	}
	return h.objects[idx].kind == kind
}

// IsAggregate reports whether v references a string, array or sexp.
func (h *Heap) IsAggregate(v Value) bool {
	return h.IsObject(v, KindString) || h.IsObject(v, KindArray) || h.IsObject(v, KindSexp)
}

// Length returns the element count stored in the object's data header:
// bytes for strings, word slots otherwise.
func (h *Heap) Length(v Value) int {
	o := h.obj(v)
	if o.kind == KindString {
		return len(o.bytes)
	}
	return len(o.words)
}

// Slot reads a word payload slot.
func (h *Heap) Slot(v Value, i int) Value {
	return h.obj(v).words[i]
}

// SetSlot writes a word payload slot.
func (h *Heap) SetSlot(v Value, i int, w Value) {
	h.obj(v).words[i] = w
}

// Byte reads a string payload byte.
func (h *Heap) Byte(v Value, i int) byte {
	return h.obj(v).bytes[i]
}

// SetByte writes a string payload byte.
func (h *Heap) SetByte(v Value, i int, b byte) {
	h.obj(v).bytes[i] = b
}

// Bytes returns the string payload.
func (h *Heap) Bytes(v Value) []byte {
	return h.obj(v).bytes
}

// SetStringContent copies s into a freshly allocated string object.
func (h *Heap) SetStringContent(v Value, s string) {
	copy(h.obj(v).bytes, s)
}

// Tag returns the interned tag of an S-expression.
func (h *Heap) Tag(v Value) int32 {
	return h.obj(v).tag
}

// SetTag sets the interned tag of an S-expression.
func (h *Heap) SetTag(v Value, t int32) {
	h.obj(v).tag = t
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

func (h *Heap) collect() {
	var worklist []int32

	markRef := func(v Value) {
		if !v.IsRef() {
			return
		}
		idx := v.index()
		if idx < 0 || int(idx) >= len(h.objects) {
			return
		}
		o := &h.objects[idx]
		if !o.live || o.marked {
			return
		}
		o.marked = true
		worklist = append(worklist, idx)
	}

	for i := h.stackTop; i < h.stackBottom; i++ {
		markRef(h.stack[i])
	}

	for len(worklist) > 0 {
		idx := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		o := &h.objects[idx]
		start := 0
		if o.kind == KindClosure {
			// Slot 0 is a code offset, not a value.
			start = 1
		}
		for i := start; i < len(o.words); i++ {
			markRef(o.words[i])
		}
	}

	for i := range h.objects {
		o := &h.objects[i]
		if !o.live {
			continue
		}
		if !o.marked {
			*o = object{}
			h.free = append(h.free, int32(i))
			h.alloced--
			continue
		}
		o.marked = false
	}
}

// LiveObjects reports the number of live heap cells.
func (h *Heap) LiveObjects() int {
	return h.alloced
}

// ---------------------------------------------------------------------------
// Stringify
// ---------------------------------------------------------------------------

// Stringify renders a value: integers bare, arrays bracketed, strings
// quoted, closures opaque, sexps as tag plus parenthesized payload.
func (h *Heap) Stringify(v Value) string {
	var b strings.Builder
	h.stringify(&b, v)
	return b.String()
}

func (h *Heap) stringify(b *strings.Builder, v Value) {
	if v.IsUnboxed() {
		fmt.Fprintf(b, "%d", v.Unbox())
		return
	}
	switch h.Kind(v) {
	case KindArray:
		b.WriteByte('[')
		for i := 0; i < h.Length(v); i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			h.stringify(b, h.Slot(v, i))
		}
		b.WriteByte(']')
	case KindClosure:
		b.WriteString("<function>")
	case KindString:
		b.WriteByte('"')
		b.Write(h.Bytes(v))
		b.WriteByte('"')
	case KindSexp:
		b.WriteString(h.TagName(h.Tag(v)))
		if n := h.Length(v); n > 0 {
			b.WriteString(" (")
			for i := 0; i < n; i++ {
				if i > 0 {
					b.WriteString(", ")
				}
				h.stringify(b, h.Slot(v, i))
			}
			b.WriteByte(')')
		}
	}
}
