package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event one Server-Sent Event
type Event struct {
	// Type from the "event:" field, "" for the default type
	Type string
	// Data joined "data:" lines
	Data string
	ID   string
}

// Scanner reads Server-Sent Events from an io.Reader.
// Events end at a blank line; comment lines (":") and unknown fields are skipped.
type Scanner struct {
	reader  *bufio.Reader
	current Event
	err     error
}

// NewScanner create Scanner
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next event, false on EOF or error
func (s *Scanner) Next() bool {
	if s.err != nil {
		return false
	}
	s.current = Event{}

	var (
		dataLines []string
		eventType string
		eventID   string
		hasData   bool
	)

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF && hasData {
				// 最後一個事件沒有空行結尾
				s.current = Event{Type: eventType, Data: strings.Join(dataLines, "\n"), ID: eventID}
				s.err = io.EOF
				return true
			}
			s.err = err
			return false
		}

		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData {
				s.current = Event{Type: eventType, Data: strings.Join(dataLines, "\n"), ID: eventID}
				return true
			}
			eventType = ""
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, hasColon := strings.Cut(line, ":")
		if !hasColon {
			field, value = line, ""
		} else {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "event":
			eventType = value
		case "id":
			eventID = value
		}
	}
}

// Event returns the event read by the last successful Next
func (s *Scanner) Event() Event {
	return s.current
}

// Err first non-EOF error
func (s *Scanner) Err() error {
	if s.err == io.EOF {
		return nil
	}
	return s.err
}

// Format encode one data frame, "data: <payload>\n\n"
func Format(data []byte) []byte {
	out := make([]byte, 0, len(data)+8)
	for _, line := range strings.Split(string(data), "\n") {
		out = append(out, "data: "...)
		out = append(out, line...)
		out = append(out, '\n')
	}
	return append(out, '\n')
}
