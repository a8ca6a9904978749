package llm

import (
	"context"
	"errors"
	"io"
	"strings"
)

type channelStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	events <-chan Event
}

// newEventStream runs produce in a goroutine and exposes what it emits as a
// Stream. A non-nil return from produce is delivered as an EventError.
func newEventStream(ctx context.Context, produce func(context.Context, chan<- Event) error) Stream {
	streamCtx, cancel := context.WithCancel(ctx)
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		if err := produce(streamCtx, ch); err != nil {
			select {
			case ch <- Event{Type: EventError, Err: err}:
			case <-streamCtx.Done():
			}
		}
	}()
	return &channelStream{ctx: streamCtx, cancel: cancel, events: ch}
}

func (s *channelStream) Recv() (Event, error) {
	// Drain buffered events first so a trailing EventDone or EventError is
	// not lost when ctx is cancelled at the same moment.
	select {
	case event, ok := <-s.events:
		if !ok {
			return Event{}, io.EOF
		}
		return event, nil
	default:
	}

	select {
	case <-s.ctx.Done():
		return Event{}, s.ctx.Err()
	case event, ok := <-s.events:
		if !ok {
			return Event{}, io.EOF
		}
		return event, nil
	}
}

func (s *channelStream) Close() error {
	s.cancel()
	return nil
}

// emit sends ev unless ctx is done first.
func emit(ctx context.Context, events chan<- Event, ev Event) error {
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Collect reads stream to the end, calling onText for each text delta, and
// returns the concatenated text. The first error event or receive error stops
// collection; text gathered so far is returned with it.
func Collect(stream Stream, onText func(string)) (string, *Usage, error) {
	var (
		b     strings.Builder
		usage *Usage
	)
	for {
		event, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), usage, nil
		}
		if err != nil {
			return b.String(), usage, err
		}
		switch event.Type {
		case EventTextDelta:
			if event.Text == "" {
				continue
			}
			b.WriteString(event.Text)
			if onText != nil {
				onText(event.Text)
			}
		case EventUsage:
			usage = event.Use
		case EventError:
			if event.Err == nil {
				event.Err = errors.New("unknown provider error")
			}
			return b.String(), usage, event.Err
		case EventDone:
			return b.String(), usage, nil
		}
	}
}
