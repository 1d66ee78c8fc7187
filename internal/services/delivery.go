package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/luminachat/lumina-backend/internal/clients/evolution"
	"github.com/luminachat/lumina-backend/internal/clients/twilio"
	types "github.com/luminachat/lumina-backend/internal/domain"
	"github.com/luminachat/lumina-backend/internal/pkg/logger"
)

// Sender delivers one outbound text over a specific messaging provider.
type Sender interface {
	Send(ctx context.Context, phone string, text string, prog *types.Program) error
}

// DeliveryTable routes sends by the program's configured provider. The
// table is built once at startup; there is no runtime provider lookup.
type DeliveryTable struct {
	log     *logger.Logger
	senders map[string]Sender
}

func NewDeliveryTable(baseLog *logger.Logger, senders map[string]Sender) *DeliveryTable {
	return &DeliveryTable{
		log:     baseLog.With("service", "DeliveryTable"),
		senders: senders,
	}
}

// SendMessage reports delivery as a boolean; failures are logged, never
// raised. Callers that must fail on non-delivery check the bool.
func (t *DeliveryTable) SendMessage(ctx context.Context, phone string, text string, prog *types.Program) bool {
	if prog == nil {
		t.log.Error("Delivery without program")
		return false
	}
	sender, ok := t.senders[prog.Provider]
	if !ok {
		t.log.Error("No sender for provider",
			"provider", prog.Provider,
			"program_id", prog.ID,
		)
		return false
	}
	if err := sender.Send(ctx, phone, text, prog); err != nil {
		t.log.Error("Delivery failed",
			"provider", prog.Provider,
			"program_id", prog.ID,
			"phone", phone,
			"error", err,
		)
		return false
	}
	return true
}

// evolutionSender sends through the program's Evolution API instance. The
// instance name comes from the program's provider config, falling back to
// the client default.
type evolutionSender struct {
	client evolution.Client
}

func NewEvolutionSender(client evolution.Client) Sender {
	return &evolutionSender{client: client}
}

func (s *evolutionSender) Send(ctx context.Context, phone string, text string, prog *types.Program) error {
	var cfg struct {
		Instance string `json:"instance"`
	}
	if len(prog.ProviderConfig) > 0 {
		if err := json.Unmarshal(prog.ProviderConfig, &cfg); err != nil {
			return fmt.Errorf("program %s provider config: %w", prog.ID, err)
		}
	}
	_, err := s.client.SendText(ctx, strings.TrimSpace(cfg.Instance), phone, text)
	return err
}

type twilioSender struct {
	client twilio.Client
}

func NewTwilioSender(client twilio.Client) Sender {
	return &twilioSender{client: client}
}

func (s *twilioSender) Send(ctx context.Context, phone string, text string, prog *types.Program) error {
	_, err := s.client.SendWhatsApp(ctx, phone, text)
	return err
}
