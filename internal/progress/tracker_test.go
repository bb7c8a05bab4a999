package progress

import (
	"errors"
	"testing"
)

func TestSetProgressNotifiesSnapshots(t *testing.T) {
	tr := NewTracker()
	var got []Snapshot
	tr.AddListener(func(s Snapshot) { got = append(got, s) })

	tr.SetProgress(0, 50)
	tr.SetProgress(0, 100)

	if len(got) != 2 {
		t.Fatalf("got %d notifications, want 2", len(got))
	}
	if got[0][0].Percent != 50 || got[1][0].Percent != 100 {
		t.Errorf("percents = %d, %d; want 50, 100", got[0][0].Percent, got[1][0].Percent)
	}
	if got[0][0].Status != StatusUploading || got[1][0].Status != StatusCompleted {
		t.Errorf("statuses = %s, %s", got[0][0].Status, got[1][0].Status)
	}
}

func TestSnapshotIsFullMap(t *testing.T) {
	tr := NewTracker()
	var last Snapshot
	tr.AddListener(func(s Snapshot) { last = s })

	tr.SetProgress(0, 10)
	tr.SetProgress(1, 20)
	if len(last) != 2 || last[0].Percent != 10 || last[1].Percent != 20 {
		t.Fatalf("snapshot = %v, want both entries", last)
	}

	last[0] = Entry{Percent: 99}
	if tr.Snapshot()[0].Percent != 10 {
		t.Error("mutating a snapshot changed the tracker")
	}
}

func TestPercentClampedAndMonotonic(t *testing.T) {
	tr := NewTracker()
	tr.SetProgress(3, -5)
	if p := tr.Snapshot()[3].Percent; p != 0 {
		t.Errorf("percent = %d, want clamped to 0", p)
	}
	tr.SetProgress(3, 60)
	tr.SetProgress(3, 40)
	if p := tr.Snapshot()[3].Percent; p != 60 {
		t.Errorf("percent = %d, want 60 (no decrease)", p)
	}
	tr.SetProgress(3, 250)
	if e := tr.Snapshot()[3]; e.Percent != 100 || e.Status != StatusCompleted {
		t.Errorf("entry = %+v, want completed at 100", e)
	}
}

func TestTerminalEntriesIgnoreUpdates(t *testing.T) {
	tr := NewTracker()
	calls := 0
	tr.AddListener(func(Snapshot) { calls++ })

	tr.Start(0)
	tr.Fail(0, errors.New("connection reset"))
	tr.SetProgress(0, 80)
	tr.Complete(0)

	e := tr.Snapshot()[0]
	if e.Status != StatusFailed || e.Error != "connection reset" {
		t.Errorf("entry = %+v, want failed with error", e)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (start, fail)", calls)
	}
}

func TestClearNotifiesEmpty(t *testing.T) {
	tr := NewTracker()
	tr.SetProgress(0, 30)

	var got []Snapshot
	tr.AddListener(func(s Snapshot) { got = append(got, s) })
	tr.Clear()

	if len(got) != 1 {
		t.Fatalf("got %d notifications, want 1", len(got))
	}
	if got[0] == nil || len(got[0]) != 0 {
		t.Errorf("snapshot = %v, want empty map", got[0])
	}
}

func TestUnsubscribeRemovesOnlyThatRegistration(t *testing.T) {
	tr := NewTracker()
	var a, b int
	f := func(Snapshot) { a++ }
	unsubA := tr.AddListener(f)
	tr.AddListener(f)
	tr.AddListener(func(Snapshot) { b++ })

	unsubA()
	unsubA()
	tr.SetProgress(0, 1)

	if a != 1 || b != 1 {
		t.Errorf("a = %d, b = %d; want 1, 1", a, b)
	}
}

func TestListenerOrderAndAddDuringNotification(t *testing.T) {
	tr := NewTracker()
	var order []string
	added := false
	tr.AddListener(func(Snapshot) {
		order = append(order, "first")
		if !added {
			added = true
			tr.AddListener(func(Snapshot) { order = append(order, "late") })
		}
	})
	tr.AddListener(func(Snapshot) { order = append(order, "second") })

	tr.SetProgress(0, 10)
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("first notification order = %v", order)
	}

	order = nil
	tr.SetProgress(0, 20)
	want := []string{"first", "second", "late"}
	if len(order) != len(want) {
		t.Fatalf("second notification order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("second notification order = %v, want %v", order, want)
		}
	}
}
