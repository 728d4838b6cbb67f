package event

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Normalizer parses raw gateway payloads into Events.
type Normalizer struct {
	prefix string
}

// NewNormalizer creates a normalizer with the given command prefix.
func NewNormalizer(commandPrefix string) *Normalizer {
	return &Normalizer{prefix: commandPrefix}
}

// Normalize parses a raw JSON payload into an Event. It has no side effects;
// a nil Event is returned together with a *NormalizeError on failure.
func (n *Normalizer) Normalize(raw []byte) (*Event, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, newError(ReasonMalformedContent, "invalid JSON: %v", err)
	}

	postType, ok := payload["post_type"].(string)
	if !ok || postType == "" {
		return nil, newError(ReasonMissingField, "post_type is required")
	}

	ev := &Event{
		Raw:     payload,
		Time:    eventTime(payload),
		GroupID: asInt64(payload["group_id"]),
		UserID:  asInt64(payload["user_id"]),
	}

	switch Kind(postType) {
	case KindMessage:
		ev.Kind = KindMessage
		return n.normalizeMessage(ev, payload)
	case KindNotice:
		ev.Kind = KindNotice
		ev.NoticeType, ok = payload["notice_type"].(string)
		if !ok || ev.NoticeType == "" {
			return nil, newError(ReasonMissingField, "notice_type is required")
		}
		return ev, nil
	case KindRequest:
		ev.Kind = KindRequest
		ev.RequestType, ok = payload["request_type"].(string)
		if !ok || ev.RequestType == "" {
			return nil, newError(ReasonMissingField, "request_type is required")
		}
		return ev, nil
	default:
		return nil, newError(ReasonUnknownKind, "unknown post_type %q", postType)
	}
}

func (n *Normalizer) normalizeMessage(ev *Event, payload map[string]any) (*Event, error) {
	if ev.UserID == 0 {
		return nil, newError(ReasonMissingField, "user_id is required for message events")
	}

	ev.MessageType, _ = payload["message_type"].(string)
	ev.SubType, _ = payload["sub_type"].(string)
	ev.RawMessage, _ = payload["raw_message"].(string)

	if sender, ok := payload["sender"].(map[string]any); ok {
		ev.Sender.UserID = asInt64(sender["user_id"])
		ev.Sender.Nickname, _ = sender["nickname"].(string)
		ev.Sender.Role, _ = sender["role"].(string)
	}
	if ev.Sender.UserID == 0 {
		ev.Sender.UserID = ev.UserID
	}

	segments, err := parseSegments(payload["message"])
	if err != nil {
		return nil, err
	}
	ev.Segments = segments
	ev.Command = n.extractCommand(segments)
	return ev, nil
}

// parseSegments accepts the two message encodings the gateway pushes: a plain
// string (one text segment) or an array of typed segments.
func parseSegments(v any) ([]Segment, error) {
	switch msg := v.(type) {
	case nil:
		return nil, newError(ReasonMissingField, "message content is required")
	case string:
		return []Segment{{Type: "text", Data: map[string]any{"text": msg}}}, nil
	case []any:
		segments := make([]Segment, 0, len(msg))
		for i, item := range msg {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, newError(ReasonMalformedContent, "segment %d is not an object", i)
			}
			segType, ok := m["type"].(string)
			if !ok || segType == "" {
				return nil, newError(ReasonMalformedContent, "segment %d has no type", i)
			}
			data, _ := m["data"].(map[string]any)
			segments = append(segments, Segment{Type: segType, Data: data})
		}
		return segments, nil
	default:
		return nil, newError(ReasonMalformedContent, "unsupported message content type %T", v)
	}
}

// extractCommand returns the prefix-stripped first token of the first text
// segment. Non-text segments (such as a leading at-mention) are skipped.
func (n *Normalizer) extractCommand(segments []Segment) string {
	for _, seg := range segments {
		if seg.Type != "text" {
			continue
		}
		text := strings.TrimLeft(seg.Text(), " \t")
		if text == "" {
			continue
		}
		if !strings.HasPrefix(text, n.prefix) {
			return ""
		}
		token := strings.TrimPrefix(text, n.prefix)
		if i := strings.IndexAny(token, " \t\r\n"); i >= 0 {
			token = token[:i]
		}
		return token
	}
	return ""
}

func eventTime(payload map[string]any) time.Time {
	if ts := asInt64(payload["time"]); ts > 0 {
		return time.Unix(ts, 0)
	}
	return time.Now()
}

// asInt64 converts the numeric encodings seen in gateway payloads. JSON
// numbers decode as float64; some gateways send identifiers as strings.
func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0
		}
		return i
	default:
		return 0
	}
}
