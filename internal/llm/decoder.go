package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// StreamObserver receives notifications while a stream is decoded.
// OnStreamEventTick is called once per event; returning an error aborts the
// stream (return ErrStreamInterrupted for cooperative cancellation).
type StreamObserver interface {
	OnTextDelta(text string)
	OnStreamEventTick() error
}

// NoopStreamObserver ignores all notifications.
type NoopStreamObserver struct{}

func (NoopStreamObserver) OnTextDelta(string)       {}
func (NoopStreamObserver) OnStreamEventTick() error { return nil }

// openBlock tracks a content block between its start and stop events.
type openBlock struct {
	order int // arrival order of the start event
	block ContentBlock
	// buffered InputJsonDelta fragments for tool-use blocks
	inputJSON []byte
}

// Decode consumes a stream to completion and reassembles its block events
// into finished content blocks. Blocks are returned in start-event order.
// The stop reason is the last one received; usage deltas are summed.
//
// A tool-use block whose buffered input is empty at stop gets the empty
// object. A buffer that does not parse as JSON fails the decode with
// InvalidResponseError.
func Decode(stream Stream, observer StreamObserver) ([]ContentBlock, StopReason, Usage, error) {
	if observer == nil {
		observer = NoopStreamObserver{}
	}
	defer stream.Close()

	open := make(map[int]*openBlock)
	var finished []*openBlock
	var stopReason StopReason
	var usage Usage
	order := 0

	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", usage, err
		}
		if err := observer.OnStreamEventTick(); err != nil {
			return nil, "", usage, err
		}

		switch ev.Type {
		case EventMessageStart:
			// nothing to accumulate

		case EventContentBlockStart:
			if ev.Block == nil {
				return nil, "", usage, &InvalidResponseError{Reason: fmt.Sprintf("content_block_start at index %d has no block", ev.Index)}
			}
			open[ev.Index] = &openBlock{order: order, block: *ev.Block}
			order++

		case EventContentBlockDelta:
			ob := open[ev.Index]
			if ob == nil {
				return nil, "", usage, &InvalidResponseError{Reason: fmt.Sprintf("delta for unknown block index %d", ev.Index)}
			}
			if ev.TextDelta != "" {
				ob.block.Text += ev.TextDelta
				observer.OnTextDelta(ev.TextDelta)
			}
			if ev.PartialJSON != "" {
				ob.inputJSON = append(ob.inputJSON, ev.PartialJSON...)
			}

		case EventContentBlockStop:
			ob := open[ev.Index]
			if ob == nil {
				return nil, "", usage, &InvalidResponseError{Reason: fmt.Sprintf("stop for unknown block index %d", ev.Index)}
			}
			delete(open, ev.Index)
			if ob.block.Type == BlockToolUse && ob.block.ToolUse != nil {
				input, err := finishToolInput(ob.inputJSON)
				if err != nil {
					return nil, "", usage, err
				}
				use := *ob.block.ToolUse
				use.Input = input
				ob.block.ToolUse = &use
			}
			finished = append(finished, ob)

		case EventMessageDelta:
			if ev.StopReason != "" {
				stopReason = ev.StopReason
			}
			if ev.Usage != nil {
				usage.Add(*ev.Usage)
			}

		case EventMessageStop:
			// the stream ends with io.EOF after this

		case EventError:
			reason := "provider error"
			if ev.Err != nil {
				reason = ev.Err.Error()
			}
			return nil, "", usage, &StreamError{Reason: reason, Cause: ev.Err}
		}
	}

	// A block left open at stream end was never stopped; close it anyway so
	// partial text survives a truncated stream.
	for _, ob := range open {
		if ob.block.Type == BlockToolUse && ob.block.ToolUse != nil {
			input, err := finishToolInput(ob.inputJSON)
			if err != nil {
				return nil, "", usage, err
			}
			use := *ob.block.ToolUse
			use.Input = input
			ob.block.ToolUse = &use
		}
		finished = append(finished, ob)
	}

	sort.Slice(finished, func(i, j int) bool { return finished[i].order < finished[j].order })
	blocks := make([]ContentBlock, 0, len(finished))
	for _, ob := range finished {
		blocks = append(blocks, ob.block)
	}
	if stopReason == "" {
		stopReason = StopEndTurn
	}
	return blocks, stopReason, usage, nil
}

// finishToolInput parses the accumulated input buffer. An empty buffer means
// the tool was called with no arguments.
func finishToolInput(buf []byte) (json.RawMessage, error) {
	if len(buf) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(buf) {
		return nil, &InvalidResponseError{Reason: fmt.Sprintf("tool input is not valid JSON: %q", truncateForError(string(buf)))}
	}
	return json.RawMessage(buf), nil
}

func truncateForError(s string) string {
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
