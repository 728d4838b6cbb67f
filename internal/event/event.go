// Package event defines the normalized inbound event model and the
// normalizer that produces it from raw gateway payloads.
package event

import (
	"time"
)

// Kind is the category of an inbound event.
type Kind string

// Event kinds pushed by the gateway.
const (
	KindMessage Kind = "message"
	KindNotice  Kind = "notice"
	KindRequest Kind = "request"
)

// Segment is one unit of message content: text, image, at-mention and so on.
type Segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Text returns the text payload of a text segment, or "" for other types.
func (s Segment) Text() string {
	if s.Type != "text" {
		return ""
	}
	t, _ := s.Data["text"].(string)
	return t
}

// Sender identifies the author of a message.
type Sender struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
	Role     string `json:"role"`
}

// Event is a normalized inbound event. It is immutable after normalization;
// handlers must not modify it or the maps it references.
type Event struct {
	Kind Kind
	Time time.Time

	// Raw is the full source payload, preserved for handlers that need
	// fields the envelope does not map.
	Raw map[string]any

	// GroupID and UserID are 0 when the payload carries no such identifier.
	GroupID int64
	UserID  int64

	// Message fields.
	MessageType string // "group" or "private"
	SubType     string
	Sender      Sender
	Segments    []Segment
	RawMessage  string
	// Command is the prefix-stripped first token of the first text segment
	// when it starts with the configured command prefix, "" otherwise.
	// Matching is case-sensitive; interpretation is up to handlers.
	Command string

	// Notice / request fields.
	NoticeType  string
	RequestType string
}

// IsGroup reports whether the event occurred in a group chat.
func (e *Event) IsGroup() bool {
	return e.GroupID != 0
}

// PlainText concatenates the text segments of a message.
func (e *Event) PlainText() string {
	var out string
	for _, seg := range e.Segments {
		out += seg.Text()
	}
	return out
}

// MessageClass buckets a message by its content segments: "text", "image",
// "mixed" (text and image) or "other". Used by the activity aggregator's
// per-type counters.
func (e *Event) MessageClass() string {
	var text, image, other bool
	for _, seg := range e.Segments {
		switch seg.Type {
		case "text":
			text = true
		case "image":
			image = true
		default:
			other = true
		}
	}
	switch {
	case other:
		return "other"
	case text && image:
		return "mixed"
	case image:
		return "image"
	case text:
		return "text"
	default:
		return "other"
	}
}
