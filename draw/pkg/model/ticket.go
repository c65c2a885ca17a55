package model

import (
	"fmt"
	"time"
)

// Ticket is one sold ticket. WinnerPosition is set iff IsWinner.
type Ticket struct {
	TicketNumber   string `json:"ticket_number"`
	LotteryID      int64  `json:"lottery_id"`
	WinnerPosition *int   `json:"winner_position,omitempty"`
	IsWinner       bool   `json:"is_winner"`
}

// Winner pairs a ticket with its 1-based winning position.
type Winner struct {
	TicketNumber   string `json:"ticket_number"`
	WinnerPosition int    `json:"winner_position"`
}

// DrawResult is the ordered winner list of one lottery, as exchanged on the
// results feeds.
type DrawResult struct {
	LotteryID   int64     `json:"lottery_id"`
	LotteryName string    `json:"lottery_name"`
	DrawDate    time.Time `json:"draw_date"`
	Tickets     []Winner  `json:"tickets"`
	Seed        string    `json:"seed,omitempty"`
}

// Validate checks an imported result: positive lottery id, non-empty ticket
// numbers, positions >= 1, no repeated ticket or position.
func (r DrawResult) Validate() error {
	if r.LotteryID <= 0 {
		return fmt.Errorf("%w: lottery id must be positive, got %d", ErrValidation, r.LotteryID)
	}
	tickets := make(map[string]struct{}, len(r.Tickets))
	positions := make(map[int]struct{}, len(r.Tickets))
	for i, w := range r.Tickets {
		if w.TicketNumber == "" {
			return fmt.Errorf("%w: ticket %d has empty ticket number", ErrValidation, i)
		}
		if w.WinnerPosition < 1 || w.WinnerPosition > len(r.Tickets) {
			return fmt.Errorf("%w: ticket %s has position %d outside 1..%d",
				ErrValidation, w.TicketNumber, w.WinnerPosition, len(r.Tickets))
		}
		if _, dup := tickets[w.TicketNumber]; dup {
			return fmt.Errorf("%w: ticket %s listed twice", ErrValidation, w.TicketNumber)
		}
		if _, dup := positions[w.WinnerPosition]; dup {
			return fmt.Errorf("%w: position %d assigned twice", ErrValidation, w.WinnerPosition)
		}
		tickets[w.TicketNumber] = struct{}{}
		positions[w.WinnerPosition] = struct{}{}
	}
	return nil
}

// TicketSale is one entry of the ticket-sale feed.
type TicketSale struct {
	LotteryID    int64       `json:"lottery_id"`
	Type         LotteryType `json:"lottery_type"`
	TicketNumber string      `json:"ticket_number"`
}

// Validate checks the sale event.
func (s TicketSale) Validate() error {
	if s.LotteryID <= 0 {
		return fmt.Errorf("%w: lottery id must be positive, got %d", ErrValidation, s.LotteryID)
	}
	if s.TicketNumber == "" {
		return fmt.Errorf("%w: ticket number is required", ErrValidation)
	}
	if _, err := ParseLotteryType(string(s.Type)); err != nil {
		return err
	}
	return nil
}
