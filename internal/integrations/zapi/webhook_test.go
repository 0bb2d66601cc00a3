package zapi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseWebhook_Accepted(t *testing.T) {
	msg, v := ParseWebhook([]byte(`{
		"phone": "5511999990000",
		"fromMe": false,
		"isGroup": false,
		"messageId": "3EB0ABC",
		"type": "ReceivedCallback",
		"text": {"message": "  Oi  "}
	}`))
	require.Equal(t, VerdictAccepted, v)
	require.Equal(t, InboundMessage{Phone: "5511999990000", Text: "Oi", MessageID: "3EB0ABC"}, msg)
}

func TestParseWebhook_Verdicts(t *testing.T) {
	cases := []struct {
		name string
		body string
		want Verdict
	}{
		{"not json", `not-json`, VerdictMalformed},
		{"empty body", ``, VerdictMalformed},
		{"json array", `[1,2]`, VerdictMalformed},
		{"missing phone", `{"text":{"message":"oi"}}`, VerdictMalformed},
		{"missing text", `{"phone":"5511"}`, VerdictMalformed},
		{"blank text", `{"phone":"5511","text":{"message":"   "}}`, VerdictMalformed},
		{"text wrong type", `{"phone":"5511","text":"oi"}`, VerdictMalformed},
		{"image without text", `{"phone":"5511","image":{"imageUrl":"x"}}`, VerdictMalformed},
		{"from me", `{"phone":"5511","fromMe":true,"text":{"message":"oi"}}`, VerdictIgnored},
		{"group", `{"phone":"5511-group","isGroup":true,"text":{"message":"oi"}}`, VerdictIgnored},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, v := ParseWebhook([]byte(tc.body))
			require.Equal(t, tc.want, v)
			require.Equal(t, InboundMessage{}, msg)
		})
	}
}

func TestVerdict_String(t *testing.T) {
	require.Equal(t, "accepted", VerdictAccepted.String())
	require.Equal(t, "malformed", VerdictMalformed.String())
	require.Equal(t, "ignored", VerdictIgnored.String())
	require.Equal(t, "unknown", Verdict(42).String())
}
