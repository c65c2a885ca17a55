package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lottoworks/drawstack/common/messaging"
	"github.com/lottoworks/drawstack/draw/pkg/model"
)

// Publisher exports draw results onto the results stream.
type Publisher struct {
	client messaging.DurablePublisher
}

// NewPublisher creates a new results publisher.
func NewPublisher(client messaging.DurablePublisher) *Publisher {
	return &Publisher{client: client}
}

// PublishDrawResult publishes one lottery's results. The message id is
// derived from the lottery id, so a re-export inside the stream's duplicate
// window is dropped by the server.
func (p *Publisher) PublishDrawResult(ctx context.Context, result *model.DrawResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal draw result: %w", err)
	}

	msgID := messaging.DrawResultsMsgID(result.LotteryID)
	if err := p.client.PublishWithID(ctx, messaging.SubjectResultsDrawn, data, msgID); err != nil {
		return fmt.Errorf("failed to publish draw result for lottery %d: %w", result.LotteryID, err)
	}
	return nil
}
