package testutil

import (
	"bufio"
	"io"
	"strings"
	"testing"
	"time"
)

// Event is one record parsed from an event stream.
type Event struct {
	ID      string
	Event   string
	Data    string
	Retry   string
	Comment string
}

// StreamReader reads records from an event stream body.
type StreamReader struct {
	r *bufio.Reader
}

// NewStreamReader wraps body.
func NewStreamReader(body io.Reader) *StreamReader {
	return &StreamReader{r: bufio.NewReader(body)}
}

// Next returns the next record, failing the test after timeout.
func (s *StreamReader) Next(t *testing.T, timeout time.Duration) Event {
	t.Helper()
	type result struct {
		event Event
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		ev, err := s.read()
		ch <- result{ev, err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("read event: %v", res.err)
		}
		return res.event
	case <-time.After(timeout):
		t.Fatalf("no event within %v", timeout)
		return Event{}
	}
}

// NextData skips comment-only records and returns the next one with data.
func (s *StreamReader) NextData(t *testing.T, timeout time.Duration) Event {
	t.Helper()
	for {
		ev := s.Next(t, timeout)
		if ev.Comment == "" || ev.Data != "" {
			return ev
		}
	}
}

// ReadUntilEOF drains the stream and reports whether it ended before timeout.
func (s *StreamReader) ReadUntilEOF(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, s.r)
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *StreamReader) read() (Event, error) {
	var (
		ev   Event
		data []string
		seen bool
	)
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			return ev, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if !seen {
				continue
			}
			ev.Data = strings.Join(data, "\n")
			return ev, nil
		}
		seen = true
		if strings.HasPrefix(line, ":") {
			ev.Comment = strings.TrimSpace(line[1:])
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			ev.ID = value
		case "event":
			ev.Event = value
		case "data":
			data = append(data, value)
		case "retry":
			ev.Retry = value
		}
	}
}
