package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/lottoworks/drawstack/common/messaging"
)

// Stats counts published messages per feed.
type Stats struct {
	Schedules     int `json:"schedules"`
	WinnerConfigs int `json:"winner_configs"`
	Sales         int `json:"ticket_sales"`
}

// Runner publishes a Plan. Message ids are derived from the content, so
// re-running the same plan inside the stream's duplicate window is a no-op.
type Runner struct {
	publisher messaging.DurablePublisher
	// Progress, if set, is called after each ticket sale is published.
	Progress func(done, total int)
}

// NewRunner creates a new seeder runner
func NewRunner(publisher messaging.DurablePublisher) *Runner {
	return &Runner{publisher: publisher}
}

// Run publishes schedules first, then winner counts, then ticket sales. Each
// subject has its own consumer, so this order only makes it likely that a
// schedule lands before its tickets. The draw service accepts any arrival
// order and redelivers a winner count whose schedule has not arrived yet.
func (r *Runner) Run(ctx context.Context, plan Plan) (Stats, error) {
	var stats Stats

	for _, s := range plan.Schedules {
		if err := r.publish(ctx, messaging.SubjectScheduleCreated, "schedule-"+strconv.FormatInt(s.ID, 10), s); err != nil {
			return stats, err
		}
		stats.Schedules++
	}

	for _, c := range plan.WinnerConfigs {
		if err := r.publish(ctx, messaging.SubjectWinnersConfigured, "winners-"+strconv.FormatInt(c.LotteryID, 10), c); err != nil {
			return stats, err
		}
		stats.WinnerConfigs++
	}

	for i, s := range plan.Sales {
		msgID := "sale-" + strconv.FormatInt(s.LotteryID, 10) + "-" + s.TicketNumber
		if err := r.publish(ctx, messaging.SubjectTicketsSold, msgID, s); err != nil {
			return stats, err
		}
		stats.Sales++
		if r.Progress != nil {
			r.Progress(i+1, len(plan.Sales))
		}
	}
	return stats, nil
}

func (r *Runner) publish(ctx context.Context, subject, msgID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := r.publisher.PublishWithID(ctx, subject, data, msgID); err != nil {
		return fmt.Errorf("publish %s (%s): %w", subject, msgID, err)
	}
	return nil
}
