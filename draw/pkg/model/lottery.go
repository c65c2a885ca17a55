// Package model holds the lottery domain types shared by the draw service and drawctl.
package model

import (
	"fmt"
	"strings"
	"time"
)

// LotteryType is the closed set of lottery products. Each type owns one
// parent ticket table.
type LotteryType string

const (
	LotteryTypeDailyFixed   LotteryType = "daily_fixed"
	LotteryTypeDailyDynamic LotteryType = "daily_dynamic"
	LotteryTypeJackpot      LotteryType = "jackpot"
	LotteryTypeSupertour    LotteryType = "supertour"
)

// LotteryTypes lists every known type in a stable order.
var LotteryTypes = []LotteryType{
	LotteryTypeDailyFixed,
	LotteryTypeDailyDynamic,
	LotteryTypeJackpot,
	LotteryTypeSupertour,
}

// ParseLotteryType accepts both "daily_fixed" and "daily-fixed" spellings.
func ParseLotteryType(s string) (LotteryType, error) {
	norm := LotteryType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, t := range LotteryTypes {
		if t == norm {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLotteryType, s)
}

// Valid reports whether t is one of the known types.
func (t LotteryType) Valid() bool {
	for _, known := range LotteryTypes {
		if t == known {
			return true
		}
	}
	return false
}

// TicketTable is the parent table holding this type's tickets.
func (t LotteryType) TicketTable() string {
	return "tickets_" + string(t)
}

// PartitionTable is the child table holding one lottery's tickets.
func (t LotteryType) PartitionTable(lotteryID int64) string {
	return fmt.Sprintf("%s_%d", t.TicketTable(), lotteryID)
}

// Stage is the lifecycle position of a lottery.
type Stage string

const (
	StageScheduled Stage = "SCHEDULED"
	StageDue       Stage = "DUE"
	StageDrawn     Stage = "DRAWN"
	StageExported  Stage = "EXPORTED"
)

// Lottery is one scheduled draw.
type Lottery struct {
	ID                int64       `json:"id"`
	Type              LotteryType `json:"lottery_type"`
	Name              string      `json:"lottery_name"`
	SaleStartAt       time.Time   `json:"sale_start_at"`
	SaleEndAt         time.Time   `json:"sale_end_at"`
	DrawAt            time.Time   `json:"draw_at"`
	IsActive          bool        `json:"is_active"`
	WinnerCount       *int        `json:"winner_count,omitempty"`
	TotalParticipants *int        `json:"total_participants,omitempty"`
	TotalTicketsSold  *int        `json:"total_tickets_sold,omitempty"`
	DrawnAt           *time.Time  `json:"drawn_at,omitempty"`
	ResultsExportedAt *time.Time  `json:"results_exported_at,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// DrawEligible reports whether the lottery should be drawn at now.
func (l *Lottery) DrawEligible(now time.Time) bool {
	return l.IsActive &&
		l.DrawnAt == nil &&
		l.WinnerCount != nil &&
		!l.DrawAt.After(now)
}

// Stage derives the lifecycle stage at now. An active lottery past its draw
// time without a winner count is still SCHEDULED.
func (l *Lottery) Stage(now time.Time) Stage {
	switch {
	case l.ResultsExportedAt != nil:
		return StageExported
	case l.DrawnAt != nil:
		return StageDrawn
	case l.DrawEligible(now):
		return StageDue
	default:
		return StageScheduled
	}
}

// ScheduleRecord is one entry of the schedule feed.
type ScheduleRecord struct {
	ID          int64       `json:"id"`
	Type        LotteryType `json:"lottery_type"`
	Name        string      `json:"lottery_name"`
	SaleStartAt time.Time   `json:"sale_start_date"`
	SaleEndAt   time.Time   `json:"sale_end_date"`
	DrawAt      time.Time   `json:"draw_date"`
}

// Validate checks the fields the schedule store relies on.
func (r ScheduleRecord) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("%w: lottery id must be positive, got %d", ErrValidation, r.ID)
	}
	if _, err := ParseLotteryType(string(r.Type)); err != nil {
		return err
	}
	if r.DrawAt.IsZero() {
		return fmt.Errorf("%w: draw_date is required", ErrValidation)
	}
	if !r.SaleEndAt.IsZero() && r.SaleEndAt.After(r.DrawAt) {
		return fmt.Errorf("%w: sale_end_date after draw_date", ErrValidation)
	}
	return nil
}

// WinnerConfig sets how many winners a lottery will have.
type WinnerConfig struct {
	LotteryID         int64 `json:"lottery_id"`
	WinnerCount       int   `json:"calculated_winners_count"`
	TotalParticipants *int  `json:"total_participants,omitempty"`
	TotalTicketsSold  *int  `json:"total_tickets_sold,omitempty"`
}

// Validate checks the winner config.
func (c WinnerConfig) Validate() error {
	if c.LotteryID <= 0 {
		return fmt.Errorf("%w: lottery id must be positive, got %d", ErrValidation, c.LotteryID)
	}
	if c.WinnerCount < 0 {
		return fmt.Errorf("%w: winner count must not be negative, got %d", ErrValidation, c.WinnerCount)
	}
	return nil
}
