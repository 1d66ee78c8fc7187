package webhook

import (
	"strings"
	"time"
)

// InboundMessage is the provider-agnostic shape of one inbound chat
// message. It is consumed once by the orchestrator and never persisted.
type InboundMessage struct {
	Phone             string
	Text              string
	FromMe            bool
	ProviderMessageID string
	Timestamp         time.Time
	ContactName       string
	Group             bool
}

// ExtractPhone reduces a provider sender identifier to a bare digit string.
// JIDs look like "5511999999999@s.whatsapp.net" or
// "5511999999999:5511999999999@s.whatsapp.net"; anything non-digit in the
// local part is stripped. Returns "" when no digits remain.
func ExtractPhone(jid string) string {
	s := jid
	if at := strings.Index(s, "@"); at >= 0 {
		s = s[:at]
	}
	if colon := strings.Index(s, ":"); colon >= 0 {
		s = s[:colon]
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
