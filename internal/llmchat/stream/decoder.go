// Package stream decodes the assistant service's event stream into content updates.
//
// The stream is a sequence of frames separated by a blank line:
//
//	data: {"status":"processing","data":"Hel"}
//
//	data: {"status":"processing","data":"lo"}
//
//	data: {"status":"complete","data":"Stream finished"}
//
// Every delta event carries the full content accumulated so far, so receivers
// replace the visible message rather than append to it.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

const (
	// FinishedSentinel is the data value marking the end of a reply
	FinishedSentinel = "Stream finished"

	// ErrorMarker is appended to the partial reply when the transport fails
	ErrorMarker = "\n[Error: Connection failed]"

	frameDelimiter = "\n\n"
	dataPrefix     = "data:"
	readBufferSize = 4096
)

// Kind tags an Event
type Kind int

const (
	// KindDelta carries the content accumulated so far
	KindDelta Kind = iota
	// KindDone carries the final content
	KindDone
	// KindError carries the partial content with ErrorMarker appended
	KindError
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindDelta:
		return "delta"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one decoder result
type Event struct {
	Kind    Kind
	Content string
	Err     error // set for KindError
}

// Payload is the JSON body of a data frame
type Payload struct {
	Status string `json:"status"`
	Data   string `json:"data"`
}

// Decoder splits chunks into frames and accumulates reply content.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	logger   *zap.Logger
	buffer   []byte
	content  strings.Builder
	finished bool
}

// NewDecoder creates a decoder. A nil logger discards malformed-frame logs.
func NewDecoder(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{logger: logger}
}

// Content returns the content accumulated so far
func (d *Decoder) Content() string {
	return d.content.String()
}

// Finished reports whether the end-of-stream sentinel has been seen
func (d *Decoder) Finished() bool {
	return d.finished
}

// Feed appends chunk to the internal buffer and returns the events produced by
// every frame it completes. A trailing partial frame is kept for the next call.
// Raw bytes are buffered, so a multi-byte character split across chunks is
// reassembled before decoding; '\n' never occurs inside a UTF-8 sequence.
// Frames after the sentinel are ignored.
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.finished {
		return nil
	}
	d.buffer = append(d.buffer, chunk...)

	var events []Event
	for {
		idx := bytes.Index(d.buffer, []byte(frameDelimiter))
		if idx == -1 {
			break
		}
		frame := string(d.buffer[:idx])
		d.buffer = d.buffer[idx+len(frameDelimiter):]

		ev, ok := d.decodeFrame(frame)
		if !ok {
			continue
		}
		events = append(events, ev)
		if ev.Kind == KindDone {
			d.buffer = nil
			break
		}
	}
	return events
}

// decodeFrame turns one complete frame into an event
func (d *Decoder) decodeFrame(frame string) (Event, bool) {
	if !strings.HasPrefix(frame, dataPrefix) {
		return Event{}, false
	}

	jsonStr := strings.TrimSpace(frame[len(dataPrefix):])
	var payload Payload
	if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
		d.logger.Warn("Error parsing stream frame", zap.Error(err), zap.String("frame", jsonStr))
		return Event{}, false
	}

	if payload.Data == FinishedSentinel {
		d.finished = true
		return Event{Kind: KindDone, Content: d.content.String()}, true
	}

	d.content.WriteString(payload.Data)
	return Event{Kind: KindDelta, Content: d.content.String()}, true
}

// Run reads r until the sentinel, the end of the stream, a read error or ctx
// cancellation, and passes every event to emit in order.
//
// Natural end of stream without a sentinel is reported as KindDone with the
// accumulated content. A read error is reported as KindError. After ctx is
// cancelled nothing more is emitted, including events decoded from a chunk
// that was already in flight.
func Run(ctx context.Context, r io.Reader, logger *zap.Logger, emit func(Event)) {
	d := NewDecoder(logger)
	buf := make([]byte, readBufferSize)

	for {
		n, err := r.Read(buf)
		if ctx.Err() != nil {
			return
		}

		if n > 0 {
			for _, ev := range d.Feed(buf[:n]) {
				if ctx.Err() != nil {
					return
				}
				emit(ev)
				if ev.Kind == KindDone {
					return
				}
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				emit(Event{Kind: KindDone, Content: d.Content()})
				return
			}
			d.logger.Error("Stream reading error", zap.Error(err))
			emit(Event{
				Kind:    KindError,
				Content: d.Content() + ErrorMarker,
				Err:     &Error{Partial: d.Content(), Err: err},
			})
			return
		}
	}
}

// Error is a transport failure that interrupted a reply,
// preserving the content received before the failure.
type Error struct {
	Partial string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d chars): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}
