package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(data string) string {
	return `data: {"status":"processing","data":"` + data + `"}` + "\n\n"
}

const finishedFrame = `data: {"status":"complete","data":"Stream finished"}` + "\n\n"

func feedAll(d *Decoder, chunks ...string) []Event {
	var events []Event
	for _, c := range chunks {
		events = append(events, d.Feed([]byte(c))...)
	}
	return events
}

func TestDecoder_AccumulatesDeltas(t *testing.T) {
	d := NewDecoder(nil)

	events := feedAll(d, frame("4"), frame(" is"), finishedFrame)

	require.Len(t, events, 3)
	assert.Equal(t, Event{Kind: KindDelta, Content: "4"}, events[0])
	assert.Equal(t, Event{Kind: KindDelta, Content: "4 is"}, events[1])
	assert.Equal(t, Event{Kind: KindDone, Content: "4 is"}, events[2])
	assert.True(t, d.Finished())
}

func TestDecoder_FrameSplitAtEveryBoundary(t *testing.T) {
	stream := frame("Hello") + frame(", 세계") + finishedFrame

	whole := feedAll(NewDecoder(nil), stream)
	require.NotEmpty(t, whole)
	want := whole[len(whole)-1]

	for i := 1; i < len(stream); i++ {
		d := NewDecoder(nil)
		// split bytes, not runes, to cut multi-byte characters as well
		raw := []byte(stream)
		events := append(d.Feed(raw[:i]), d.Feed(raw[i:])...)

		require.NotEmpty(t, events, "split at %d", i)
		assert.Equal(t, want, events[len(events)-1], "split at %d", i)
		assert.Equal(t, "Hello, 세계", d.Content(), "split at %d", i)
	}
}

func TestDecoder_SentinelNeverContributes(t *testing.T) {
	d := NewDecoder(nil)

	events := feedAll(d, finishedFrame)

	require.Len(t, events, 1)
	assert.Equal(t, KindDone, events[0].Kind)
	assert.Equal(t, "", events[0].Content)
	assert.Equal(t, "", d.Content())
}

func TestDecoder_IgnoresFramesAfterSentinel(t *testing.T) {
	d := NewDecoder(nil)

	events := feedAll(d, frame("a")+finishedFrame+frame("b"), frame("c"))

	require.Len(t, events, 2)
	assert.Equal(t, "a", d.Content())
}

func TestDecoder_SkipsMalformedFrames(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "invalid json", input: "data: {oops\n\n"},
		{name: "non data field", input: "event: ping\n\n"},
		{name: "comment", input: ": keep-alive\n\n"},
		{name: "empty frame", input: "\n\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(nil)
			events := feedAll(d, frame("a"), tt.input, frame("b"))

			require.Len(t, events, 2)
			assert.Equal(t, "ab", events[1].Content)
		})
	}
}

func TestDecoder_KeepsPartialFrame(t *testing.T) {
	d := NewDecoder(nil)

	assert.Empty(t, d.Feed([]byte(`data: {"status":"processing","da`)))
	events := d.Feed([]byte(`ta":"x"}` + "\n\n"))

	require.Len(t, events, 1)
	assert.Equal(t, "x", events[0].Content)
}

func TestDecoder_DataWithoutSpace(t *testing.T) {
	d := NewDecoder(nil)
	events := d.Feed([]byte(`data:{"status":"processing","data":"x"}` + "\n\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "x", events[0].Content)
}

// chunkReader returns one chunk per Read call, then err
type chunkReader struct {
	chunks []string
	err    error
	onRead func(i int)
	i      int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.onRead != nil {
		r.onRead(r.i)
	}
	if r.i >= len(r.chunks) {
		return 0, r.err
	}
	n := copy(p, r.chunks[r.i])
	r.i++
	return n, nil
}

func collect(ctx context.Context, r io.Reader) []Event {
	var events []Event
	Run(ctx, r, nil, func(ev Event) { events = append(events, ev) })
	return events
}

func TestRun_StopsAtSentinel(t *testing.T) {
	r := &chunkReader{chunks: []string{frame("4"), frame(" is") + finishedFrame, frame("extra")}, err: io.EOF}

	events := collect(context.Background(), r)

	require.Len(t, events, 3)
	assert.Equal(t, Event{Kind: KindDone, Content: "4 is"}, events[2])
}

func TestRun_EOFWithoutSentinelCompletes(t *testing.T) {
	r := strings.NewReader(frame("partial") + `data: {"status":"processing","data":"cut`)

	events := collect(context.Background(), r)

	require.Len(t, events, 2)
	assert.Equal(t, Event{Kind: KindDone, Content: "partial"}, events[1])
}

func TestRun_TransportErrorAppendsMarker(t *testing.T) {
	boom := errors.New("connection reset")
	r := &chunkReader{chunks: []string{frame("Hel"), frame("lo")}, err: boom}

	events := collect(context.Background(), r)

	require.Len(t, events, 3)
	last := events[2]
	assert.Equal(t, KindError, last.Kind)
	assert.Equal(t, "Hello"+ErrorMarker, last.Content)
	assert.ErrorIs(t, last.Err, boom)

	var streamErr *Error
	require.ErrorAs(t, last.Err, &streamErr)
	assert.Equal(t, "Hello", streamErr.Partial)
}

func TestRun_NothingEmittedAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &chunkReader{
		chunks: []string{frame("a"), frame("b"), finishedFrame},
		err:    io.EOF,
		// cancel while the second chunk is "in flight"
		onRead: func(i int) {
			if i == 1 {
				cancel()
			}
		},
	}

	events := collect(ctx, r)

	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].Content)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "delta", KindDelta.String())
	assert.Equal(t, "done", KindDone.String())
	assert.Equal(t, "error", KindError.String())
}
