package engine

const (
	// trackerWindow is how many recent tool calls the tracker remembers.
	trackerWindow = 8
	// loopThreshold is how many identical fingerprints within the window
	// count as a loop.
	loopThreshold = 3
)

// CallTracker keeps a bounded FIFO of recent tool-call fingerprints and
// reports when the same call keeps recurring. Checked once per round, right
// after tool execution.
type CallTracker struct {
	window []string
}

func NewCallTracker() *CallTracker {
	return &CallTracker{window: make([]string, 0, trackerWindow)}
}

// Record appends a fingerprint, evicting the oldest entry once full.
func (t *CallTracker) Record(fp string) {
	if len(t.window) == trackerWindow {
		copy(t.window, t.window[1:])
		t.window = t.window[:trackerWindow-1]
	}
	t.window = append(t.window, fp)
}

// IsLoop reports whether fp occurs at least loopThreshold times in the
// window.
func (t *CallTracker) IsLoop(fp string) bool {
	count := 0
	for _, w := range t.window {
		if w == fp {
			count++
		}
	}
	return count >= loopThreshold
}
