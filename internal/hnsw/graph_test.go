package hnsw

import "testing"

func TestAddNodeIdempotent(t *testing.T) {
	l := newGraphLayer()
	l.AddNode(3)
	l.AddNeighbor(3, 7)
	l.AddNode(3) // must not wipe existing neighbours
	if got := l.Neighbors(3); len(got) != 1 || got[0] != 7 {
		t.Errorf("Neighbors(3) = %v, want [7]", got)
	}
	if l.Len() != 2 {
		t.Errorf("Len = %d, want 2", l.Len())
	}
}

func TestAddNeighborSymmetric(t *testing.T) {
	l := newGraphLayer()
	l.AddNeighbor(1, 2)
	if got := l.Neighbors(1); len(got) != 1 || got[0] != 2 {
		t.Errorf("Neighbors(1) = %v, want [2]", got)
	}
	if got := l.Neighbors(2); len(got) != 1 || got[0] != 1 {
		t.Errorf("Neighbors(2) = %v, want [1]", got)
	}
}

func TestAddNeighborNoDuplicatesNoSelfLoops(t *testing.T) {
	l := newGraphLayer()
	l.AddNeighbor(1, 2)
	l.AddNeighbor(2, 1)
	l.AddNeighbor(1, 2)
	if got := l.Neighbors(1); len(got) != 1 {
		t.Errorf("duplicate edge inserted: %v", got)
	}
	l.AddNeighbor(5, 5)
	if got := l.Neighbors(5); len(got) != 0 {
		t.Errorf("self-loop inserted: %v", got)
	}
}

func TestEntry(t *testing.T) {
	l := newGraphLayer()
	if _, ok := l.Entry(); ok {
		t.Error("fresh layer should have no entry")
	}
	l.SetEntry(9)
	e, ok := l.Entry()
	if !ok || e != 9 {
		t.Errorf("Entry = (%d, %v), want (9, true)", e, ok)
	}
}

func TestNodeIDsSorted(t *testing.T) {
	l := newGraphLayer()
	for _, id := range []uint32{5, 1, 9, 3, 7} {
		l.AddNode(id)
	}
	ids := l.nodeIDs()
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Fatalf("nodeIDs not sorted ascending: %v", ids)
		}
	}
}
