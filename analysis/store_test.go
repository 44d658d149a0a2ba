package analysis

import (
	"path/filepath"
	"testing"
)

func TestStoreAccumulatesCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idioms.db")
	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	rep := &Report{
		Program: "a.bc",
		Unigrams: []Idiom{
			{Offset: 0, Width: 1, Count: 4, Bytes: []byte{0x18}, Text: "DROP"},
			{Offset: 5, Width: 1, Count: 2, Bytes: []byte{0x19}, Text: "DUP"},
		},
	}

	if err := store.RecordReport("a.bc", rep); err != nil {
		t.Fatalf("RecordReport: %v", err)
	}
	if err := store.RecordReport("a.bc", rep); err != nil {
		t.Fatalf("RecordReport second: %v", err)
	}

	top, err := store.TopIdioms(10)
	if err != nil {
		t.Fatalf("TopIdioms: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("len(top) = %d, want 2", len(top))
	}
	if top[0].Text != "DROP" || top[0].Count != 8 {
		t.Errorf("top idiom = %q count %d, want DROP 8", top[0].Text, top[0].Count)
	}
	if top[1].Text != "DUP" || top[1].Count != 4 {
		t.Errorf("second idiom = %q count %d, want DUP 4", top[1].Text, top[1].Count)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idioms.db")

	store, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	rep := &Report{Unigrams: []Idiom{{Width: 1, Count: 1, Bytes: []byte{0x16}, Text: "END"}}}
	if err := store.RecordReport("b.bc", rep); err != nil {
		t.Fatalf("RecordReport: %v", err)
	}
	store.Close()

	store, err = OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore reopen: %v", err)
	}
	defer store.Close()
	top, err := store.TopIdioms(1)
	if err != nil {
		t.Fatalf("TopIdioms: %v", err)
	}
	if len(top) != 1 || top[0].Text != "END" {
		t.Errorf("top after reopen = %+v, want END", top)
	}
}
