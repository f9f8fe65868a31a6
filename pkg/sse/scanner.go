// Package sse implements a Server-Sent Events scanner for the dials relay.
// The scanner copies every raw byte it consumes to a destination writer, so a
// downstream client receives the upstream stream verbatim while the relay
// observes event boundaries for logging.
//
// Writer/server capabilities are intentionally absent; the proxy never
// originates SSE, it only relays it.
//
// See https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event is a single parsed SSE event, terminated by a blank line in the
// stream.
type Event struct {
	// Type holds the "event:" field, empty for the default "message" type.
	Type string

	// Data holds the contents of all "data:" lines, joined with "\n" when an
	// event carries more than one.
	Data string

	// ID holds the last "id:" field seen in the event, if any.
	ID string
}

// Scanner parses SSE events from src while teeing the raw bytes to dst.
// dst is typically the write end of an io.Pipe feeding the client response.
type Scanner struct {
	lines *bufio.Scanner
	dst   io.Writer

	pending Event
	partial bool
}

// NewScanner returns a Scanner over src that copies consumed bytes to dst.
func NewScanner(src io.Reader, dst io.Writer) *Scanner {
	lines := bufio.NewScanner(src)
	// Individual SSE data lines from LLM providers can be large.
	lines.Buffer(make([]byte, 64*1024), 1024*1024)

	return &Scanner{
		lines: lines,
		dst:   dst,
	}
}

// Next blocks until a complete event has been read and returns it. The raw
// bytes of everything consumed, including comments and keep-alive newlines,
// are written to dst before Next returns. At end of stream Next returns
// (nil, nil); a stream ending mid-event yields that final partial event
// first.
func (s *Scanner) Next() (*Event, error) {
	for s.lines.Scan() {
		line := s.lines.Text()

		// bufio.Scanner strips the trailing newline; restore it for dst.
		if _, err := io.WriteString(s.dst, line+"\n"); err != nil {
			return nil, err
		}

		if line == "" {
			if !s.partial {
				// Keep-alive newline or leading blank line.
				continue
			}
			ev := s.pending
			s.pending = Event{}
			s.partial = false
			return &ev, nil
		}

		if strings.HasPrefix(line, ":") {
			// Comment line, forwarded above but never parsed.
			continue
		}

		s.accumulate(line)
	}

	if err := s.lines.Err(); err != nil {
		return nil, err
	}

	if s.partial {
		ev := s.pending
		s.pending = Event{}
		s.partial = false
		return &ev, nil
	}

	return nil, nil
}

// accumulate folds one "field:value" line into the pending event. A single
// space after the colon is stripped per the SSE spec; a line with no colon is
// a field with an empty value.
func (s *Scanner) accumulate(line string) {
	field, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")

	switch field {
	case "data":
		if s.partial && s.pending.Data != "" {
			s.pending.Data += "\n"
		}
		s.pending.Data += value
		s.partial = true
	case "event":
		s.pending.Type = value
		s.partial = true
	case "id":
		s.pending.ID = value
		s.partial = true
	default:
		// "retry" and unknown fields are ignored.
	}
}
