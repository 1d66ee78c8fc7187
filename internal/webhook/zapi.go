package webhook

import (
	"encoding/json"
	"strings"
	"time"
)

// zapiPayload is the Z-API webhook body for received messages. Z-API sends
// the sender phone pre-split from the JID and spells the timestamp field
// "momment" (milliseconds).
type zapiPayload struct {
	Type       string `json:"type"`
	InstanceID string `json:"instanceId"`
	MessageID  string `json:"messageId"`
	Phone      string `json:"phone"`
	FromMe     bool   `json:"fromMe"`
	Momment    int64  `json:"momment"`
	SenderName string `json:"senderName"`
	IsGroup    bool   `json:"isGroup"`
	Text       struct {
		Message string `json:"message"`
	} `json:"text"`
}

type ZAPIAdapter struct{}

func NewZAPIAdapter() *ZAPIAdapter { return &ZAPIAdapter{} }

func (a *ZAPIAdapter) Name() string { return "zapi" }

func (a *ZAPIAdapter) CanHandle(payload []byte) bool {
	var probe struct {
		Type  string `json:"type"`
		Phone string `json:"phone"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	return probe.Type != "" && probe.Phone != ""
}

func (a *ZAPIAdapter) Adapt(payload []byte) (*InboundMessage, bool) {
	var p zapiPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, false
	}
	if p.Type != "ReceivedCallback" {
		return nil, false
	}
	if p.FromMe {
		return nil, false
	}

	text := strings.TrimSpace(p.Text.Message)
	if text == "" {
		return nil, false
	}

	phone := ExtractPhone(p.Phone)
	if phone == "" {
		return nil, false
	}

	ts := time.Now().UTC()
	if p.Momment > 0 {
		ts = time.UnixMilli(p.Momment).UTC()
	}

	return &InboundMessage{
		Phone:             phone,
		Text:              text,
		FromMe:            false,
		ProviderMessageID: p.MessageID,
		Timestamp:         ts,
		ContactName:       strings.TrimSpace(p.SenderName),
		Group:             p.IsGroup,
	}, true
}
