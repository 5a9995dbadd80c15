package services

import (
	"context"
	"encoding/json"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DeliveryEventPayload is a delivery confirmation arriving over the queue.
// It mirrors the confirm-item-receipt API contract.
type DeliveryEventPayload struct {
	OrderID          uuid.UUID `json:"po_id"`
	ItemIndex        int       `json:"item_index"`
	QuantityReceived float64   `json:"quantity_received"`
	ReceivedBy       string    `json:"received_by"`
	Notes            string    `json:"notes"`
}

// ProcessDeliveryMessage applies a queued delivery event through the same
// reconciler the HTTP API uses. Caller errors (unknown order, bad index,
// over-receipt) are terminal: retrying the message cannot fix them, so they
// are logged and swallowed to let the message complete.
func (s *ReceiptService) ProcessDeliveryMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error {
	var payload DeliveryEventPayload
	if err := json.Unmarshal(message.Body, &payload); err != nil {
		// Malformed events are terminal too; redelivery cannot fix them.
		log.Warn().Err(err).Str("message_id", message.MessageID).
			Msg("Dropping malformed delivery event")
		return nil
	}

	outcome, err := s.ConfirmReceipt(ctx,
		payload.OrderID, payload.ItemIndex, payload.QuantityReceived,
		payload.ReceivedBy, payload.Notes)
	if err != nil {
		var conflictErr *ConflictError
		if errors.As(err, &conflictErr) {
			// Transient; abandoning the message retries it later.
			return err
		}
		log.Warn().Err(err).
			Str("order_id", payload.OrderID.String()).
			Int("item_index", payload.ItemIndex).
			Msg("Dropping unprocessable delivery event")
		return nil
	}

	log.Info().
		Str("order_id", payload.OrderID.String()).
		Int("item_index", payload.ItemIndex).
		Bool("po_fully_received", outcome.OrderFullyReceived).
		Msg("Queued delivery event processed")
	return nil
}
