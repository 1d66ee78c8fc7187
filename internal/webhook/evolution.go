package webhook

import (
	"encoding/json"
	"strings"
	"time"
)

// evolutionPayload is the Evolution API webhook body for WhatsApp events.
type evolutionPayload struct {
	Event    string `json:"event"`
	Instance string `json:"instance"`
	Data     struct {
		Key struct {
			RemoteJid string `json:"remoteJid"`
			FromMe    bool   `json:"fromMe"`
			ID        string `json:"id"`
		} `json:"key"`
		PushName string `json:"pushName"`
		Message  struct {
			Conversation        string `json:"conversation"`
			ExtendedTextMessage struct {
				Text string `json:"text"`
			} `json:"extendedTextMessage"`
		} `json:"message"`
		MessageTimestamp int64 `json:"messageTimestamp"`
	} `json:"data"`
}

type EvolutionAdapter struct{}

func NewEvolutionAdapter() *EvolutionAdapter { return &EvolutionAdapter{} }

func (a *EvolutionAdapter) Name() string { return "evolution" }

func (a *EvolutionAdapter) CanHandle(payload []byte) bool {
	var probe struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}
	return probe.Event != "" && len(probe.Data) > 0
}

func (a *EvolutionAdapter) Adapt(payload []byte) (*InboundMessage, bool) {
	var p evolutionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, false
	}
	if p.Event != "messages.upsert" {
		return nil, false
	}
	if p.Data.Key.FromMe {
		return nil, false
	}

	text := strings.TrimSpace(p.Data.Message.Conversation)
	if text == "" {
		text = strings.TrimSpace(p.Data.Message.ExtendedTextMessage.Text)
	}
	if text == "" {
		return nil, false
	}

	phone := ExtractPhone(p.Data.Key.RemoteJid)
	if phone == "" {
		return nil, false
	}

	ts := time.Now().UTC()
	if p.Data.MessageTimestamp > 0 {
		ts = time.Unix(p.Data.MessageTimestamp, 0).UTC()
	}

	return &InboundMessage{
		Phone:             phone,
		Text:              text,
		FromMe:            false,
		ProviderMessageID: p.Data.Key.ID,
		Timestamp:         ts,
		ContactName:       strings.TrimSpace(p.Data.PushName),
		Group:             strings.HasSuffix(p.Data.Key.RemoteJid, "@g.us"),
	}, true
}
