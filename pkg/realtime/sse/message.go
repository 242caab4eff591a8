package sse

import (
	"bytes"
	"strings"
)

var fieldSanitizer = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// Message is one server-sent event record.
//
// A message is comment-only when Comment is set and every other field is
// empty; comment-only messages never get an id and are never kept in history.
// A Message must not be modified after it has been handed to a Broadcaster.
type Message struct {
	ID      string
	Event   string
	Data    string
	Retry   string
	Comment string

	// audience is the Predicate a filtered send was made with.
	audience any
}

// IsCommentOnly reports whether m carries nothing but a comment.
func (m Message) IsCommentOnly() bool {
	return m.Comment != "" && m.ID == "" && m.Event == "" && m.Data == "" && m.Retry == ""
}

// IsEmpty reports whether m serializes to nothing.
func (m Message) IsEmpty() bool {
	return m.Comment == "" && m.ID == "" && m.Event == "" && m.Data == "" && m.Retry == ""
}

// String returns the wire form of m.
func (m Message) String() string {
	return string(m.Bytes())
}

// Bytes returns the wire form of m: one line per non-empty field in the
// order id, event, data, retry, or a single comment line for comment-only
// messages, followed by the blank line that ends an event. An empty message
// yields nil.
func (m Message) Bytes() []byte {
	if m.IsEmpty() {
		return nil
	}

	var buffer bytes.Buffer
	if m.IsCommentOnly() {
		for _, line := range splitLines(m.Comment) {
			buffer.WriteString(": ")
			buffer.WriteString(line)
			buffer.WriteByte('\n')
		}
		buffer.WriteByte('\n')
		return buffer.Bytes()
	}

	writeField(&buffer, "id", cleanField(m.ID))
	writeField(&buffer, "event", cleanField(m.Event))
	if m.Data != "" {
		for _, line := range splitLines(m.Data) {
			buffer.WriteString("data: ")
			buffer.WriteString(line)
			buffer.WriteByte('\n')
		}
	}
	writeField(&buffer, "retry", cleanField(m.Retry))
	buffer.WriteByte('\n')
	return buffer.Bytes()
}

func (m Message) withoutRetry() Message {
	m.Retry = ""
	return m
}

// cleanField replaces line breaks in a single-line field with spaces.
func cleanField(value string) string {
	return fieldSanitizer.Replace(value)
}

func writeField(buffer *bytes.Buffer, name, value string) {
	if value == "" {
		return
	}
	buffer.WriteString(name)
	buffer.WriteString(": ")
	buffer.WriteString(value)
	buffer.WriteByte('\n')
}

func splitLines(value string) []string {
	value = strings.ReplaceAll(value, "\r\n", "\n")
	value = strings.ReplaceAll(value, "\r", "\n")
	return strings.Split(value, "\n")
}
