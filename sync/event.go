package sync

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Source wraps a parsed JSON document with path-based accessors.
type Source struct {
	data gjson.Result
}

func (s Source) StringForPath(path string) (string, bool) {
	result := s.data.Get(path)
	return result.String(), result.Exists() && (result.Value() != nil)
}

func (s Source) Data() map[string]interface{} {
	if v := s.data.Value(); v != nil {
		if m, ok := v.(map[string]interface{}); ok {
			return m
		}
	}
	return nil
}

func (s Source) Raw() string { return s.data.Raw }

// CapturedEvent is one inbound analytics event:
// { event, distinct_id, timestamp/sent_at, $set?, properties? }.
// Nested payloads stay dynamic and are narrowed at the email extractor
// and property mapper boundaries.
type CapturedEvent struct {
	Source Source
}

// ParseEvent parses a raw JSON event.
func ParseEvent(raw string) (CapturedEvent, error) {
	if !gjson.Valid(raw) {
		return CapturedEvent{}, errors.New("invalid json event")
	}
	return CapturedEvent{Source: Source{data: gjson.Parse(raw)}}, nil
}

// Name returns the event name.
func (e CapturedEvent) Name() string {
	name, _ := e.Source.StringForPath("event")
	return name
}

// DistinctID returns the event's actor identifier.
func (e CapturedEvent) DistinctID() string {
	id, _ := e.Source.StringForPath("distinct_id")
	return id
}

// SentAt returns the event send time, preferring timestamp over sent_at.
func (e CapturedEvent) SentAt() (time.Time, bool) {
	for _, path := range []string{"timestamp", "sent_at"} {
		if s, exists := e.Source.StringForPath(path); exists {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// MergedProperties merges the event's "$set" and "properties" payloads,
// with "properties" winning on key collisions.
func (e CapturedEvent) MergedProperties() map[string]interface{} {
	result := make(map[string]interface{})
	for _, path := range []string{"$set", "properties"} {
		nested := e.Source.data.Get(path)
		if !nested.Exists() {
			continue
		}
		if m, ok := nested.Value().(map[string]interface{}); ok {
			for k, v := range m {
				result[k] = v
			}
		}
	}
	return result
}

var emailPattern = regexp.MustCompile(`^(([^<>()[\]\\.,;:\s@"]+(\.[^<>()[\]\\.,;:\s@"]+)*)|(".+"))@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\])|(([a-zA-Z\-0-9]+\.)+[a-zA-Z]{2,}))$`)

// IsEmail reports whether s is a syntactically valid email address:
// local part, @, and a domain with at least one dot or a bracketed IPv4
// literal. Case-insensitive.
func IsEmail(s string) bool {
	return emailPattern.MatchString(strings.ToLower(s))
}

// EmailFromEvent returns the first valid email found in the event, checking
// the actor identifier, then $set.email, then properties.email.
func EmailFromEvent(event CapturedEvent) (string, bool) {
	if id := event.DistinctID(); IsEmail(id) {
		return id, true
	}
	for _, path := range []string{"$set.email", "properties.email"} {
		if email, exists := event.Source.StringForPath(path); exists && IsEmail(email) {
			return email, true
		}
	}
	return "", false
}

// EmailDomain returns the domain part of an email address.
func EmailDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return ""
}
