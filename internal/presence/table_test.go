package presence

import "testing"

func TestTable_SeedAndSet(t *testing.T) {
	tbl := NewTable()
	tbl.Seed(2, 3)

	if online, known := tbl.Get(2); online || !known {
		t.Errorf("Get(2) = %v, %v; want offline, known", online, known)
	}
	if _, known := tbl.Get(9); known {
		t.Error("Get(9) should be unknown")
	}

	tbl.Set(3, true)
	tbl.Seed(3)
	if online, _ := tbl.Get(3); !online {
		t.Error("Seed must not reset an existing entry")
	}

	// Unknown ids are added implicitly.
	tbl.Set(9, false)
	if tbl.Len() != 3 {
		t.Errorf("Len() = %d, want 3", tbl.Len())
	}
}

func TestTable_Snapshot(t *testing.T) {
	tbl := NewTable()
	tbl.Set(5, true)
	tbl.Seed(1, 3)

	snap := tbl.Snapshot()
	want := []Event{{UserID: 1}, {UserID: 3}, {UserID: 5, Online: true}}
	if len(snap) != len(want) {
		t.Fatalf("Snapshot() = %v", snap)
	}
	for i := range want {
		if snap[i] != want[i] {
			t.Errorf("Snapshot()[%d] = %+v, want %+v", i, snap[i], want[i])
		}
	}

	snap[0].Online = true
	if online, _ := tbl.Get(1); online {
		t.Error("Snapshot must be a copy")
	}
}

func TestTable_Subscribe(t *testing.T) {
	tbl := NewTable()
	tbl.Seed(7)

	var got []Event
	cancel := tbl.Subscribe(func(ev Event) { got = append(got, ev) })

	tbl.Set(7, true)
	tbl.Set(7, true)  // no change
	tbl.Set(8, false) // new entry
	tbl.Set(7, false)
	cancel()
	tbl.Set(7, true)

	want := []Event{{UserID: 7, Online: true}, {UserID: 8}, {UserID: 7}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
