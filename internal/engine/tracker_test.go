package engine

import "testing"

func TestCallTracker_DetectsRepeats(t *testing.T) {
	tr := NewCallTracker()
	fp := "file_read:{\"path\":\"notes.txt\"}"

	tr.Record(fp)
	if tr.IsLoop(fp) {
		t.Error("one occurrence is not a loop")
	}
	tr.Record(fp)
	if tr.IsLoop(fp) {
		t.Error("two occurrences are not a loop")
	}
	tr.Record(fp)
	if !tr.IsLoop(fp) {
		t.Error("three occurrences in the window should be a loop")
	}
}

func TestCallTracker_WindowEvicts(t *testing.T) {
	tr := NewCallTracker()
	fp := "shell:{\"command\":\"ls\"}"

	tr.Record(fp)
	tr.Record(fp)
	// push the two occurrences out of the window
	for i := 0; i < trackerWindow; i++ {
		tr.Record("other:{}")
	}
	tr.Record(fp)
	if tr.IsLoop(fp) {
		t.Error("occurrences outside the window must not count")
	}
}

func TestCallTracker_MixedCallsWithinWindow(t *testing.T) {
	tr := NewCallTracker()
	fp := "glob:{\"pattern\":\"*.go\"}"

	tr.Record(fp)
	tr.Record("other:{}")
	tr.Record(fp)
	tr.Record("another:{}")
	tr.Record(fp)
	if !tr.IsLoop(fp) {
		t.Error("three occurrences interleaved within the window should be a loop")
	}
}
