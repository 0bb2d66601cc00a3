package zapi

import (
	"encoding/json"
	"strings"
)

// Verdict classifies an inbound webhook payload.
type Verdict int

const (
	VerdictAccepted Verdict = iota
	VerdictMalformed
	VerdictIgnored
)

func (v Verdict) String() string {
	switch v {
	case VerdictAccepted:
		return "accepted"
	case VerdictMalformed:
		return "malformed"
	case VerdictIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// webhookPayload is the subset of the "on-message-received" callback we read.
type webhookPayload struct {
	Phone     string `json:"phone"`
	FromMe    bool   `json:"fromMe"`
	IsGroup   bool   `json:"isGroup"`
	MessageID string `json:"messageId"`
	Type      string `json:"type"`
	Text      *struct {
		Message string `json:"message"`
	} `json:"text"`
}

// InboundMessage is an accepted user message.
type InboundMessage struct {
	Phone     string
	Text      string
	MessageID string
}

// ParseWebhook decodes a gateway callback body. Only a VerdictAccepted result
// carries a usable message.
func ParseWebhook(body []byte) (InboundMessage, Verdict) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return InboundMessage{}, VerdictMalformed
	}
	if p.FromMe || p.IsGroup {
		return InboundMessage{}, VerdictIgnored
	}
	phone := strings.TrimSpace(p.Phone)
	var text string
	if p.Text != nil {
		text = strings.TrimSpace(p.Text.Message)
	}
	if phone == "" || text == "" {
		return InboundMessage{}, VerdictMalformed
	}
	return InboundMessage{
		Phone:     phone,
		Text:      text,
		MessageID: strings.TrimSpace(p.MessageID),
	}, VerdictAccepted
}
