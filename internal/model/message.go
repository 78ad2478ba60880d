package model

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxBodyRunes bounds the body text kept for scoring and storage.
// Longer bodies are truncated and marked with BodyTruncatedSuffix.
const MaxBodyRunes = 5000

// BodyTruncatedSuffix is appended to bodies cut at MaxBodyRunes.
const BodyTruncatedSuffix = "\n\n... (truncated)"

// Flags carries provider-side markers on a message.
type Flags struct {
	Important bool `json:"important,omitempty" yaml:"important,omitempty"`
	Unread    bool `json:"unread,omitempty" yaml:"unread,omitempty"`
}

// Message is an inbound record produced by a collector.
//
// ID is provider-scoped and unique (e.g. "gmail:18c2f..."). A Message is
// consumed exactly once by the orchestrator and never mutated.
type Message struct {
	ID         string    `json:"id" yaml:"id"`
	Source     string    `json:"source" yaml:"source"`
	Sender     string    `json:"sender" yaml:"sender"`
	Subject    string    `json:"subject" yaml:"subject"`
	Body       string    `json:"body" yaml:"body"`
	ReceivedAt time.Time `json:"received_at" yaml:"received_at"`
	Flags      Flags     `json:"flags" yaml:"flags"`
}

// ErrMissingMessageID is returned by Validate for messages without an ID.
var ErrMissingMessageID = errors.New("message id is required")

// Validate checks the fields the pipeline cannot do without.
// Empty subject and body are allowed; they degrade scoring instead.
func (m Message) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return ErrMissingMessageID
	}
	return nil
}

// Normalized returns a copy with the body truncated to MaxBodyRunes.
func (m Message) Normalized() Message {
	m.Body = TruncateBody(m.Body)
	return m
}

// TruncateBody cuts s to MaxBodyRunes runes.
func TruncateBody(s string) string {
	if utf8.RuneCountInString(s) <= MaxBodyRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxBodyRunes]) + BodyTruncatedSuffix
}

// SenderAddress extracts the bare address from a sender such as
// "Jane Doe <jane@example.com>". Returns the trimmed input if no
// angle brackets are present.
func SenderAddress(sender string) string {
	s := strings.TrimSpace(sender)
	if open := strings.LastIndex(s, "<"); open >= 0 {
		if end := strings.Index(s[open:], ">"); end > 0 {
			return strings.TrimSpace(s[open+1 : open+end])
		}
	}
	return s
}

// SenderDomain returns the lower-cased domain of the sender address, or ""
// if the sender has no '@'.
func SenderDomain(sender string) string {
	addr := SenderAddress(sender)
	at := strings.LastIndex(addr, "@")
	if at < 0 || at == len(addr)-1 {
		return ""
	}
	return strings.ToLower(addr[at+1:])
}

// SenderName returns the display name part of a sender, falling back to the
// local part of the address.
func SenderName(sender string) string {
	s := strings.TrimSpace(sender)
	if open := strings.Index(s, "<"); open > 0 {
		if name := strings.Trim(strings.TrimSpace(s[:open]), `"`); name != "" {
			return name
		}
	}
	addr := SenderAddress(s)
	if at := strings.Index(addr, "@"); at > 0 {
		return addr[:at]
	}
	return addr
}
