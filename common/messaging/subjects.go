package messaging

import "strconv"

// Subject constants for the lottery message bus.
// Follow the pattern: {domain}.{resource}.{event}
const (
	// Inbound feeds consumed by the draw service.
	SubjectScheduleCreated   = "lottery.schedule.created"   // New lottery scheduled
	SubjectWinnersConfigured = "lottery.winners.configured" // Winner count decided for a lottery
	SubjectTicketsSold       = "lottery.tickets.sold"       // Ticket sold
	SubjectResultsImported   = "lottery.results.imported"   // Externally computed winners

	// Outbound.
	SubjectResultsDrawn = "lottery.results.drawn" // Draw results exported by the draw service

	// SubjectDLQPrefix prefixes dead-lettered messages; the reason is appended.
	SubjectDLQPrefix = "lottery.dlq"
)

// Durable consumer names, one per inbound feed.
const (
	ConsumerSchedule      = "draw-schedule"
	ConsumerWinnerConfig  = "draw-winner-config"
	ConsumerTicketSales   = "draw-ticket-sales"
	ConsumerWinnerResults = "draw-winner-results"
)

// DLQSubject returns the dead-letter subject for a failure reason.
// Example: lottery.dlq.validation
func DLQSubject(reason string) string {
	if reason == "" {
		reason = "unknown"
	}
	return SubjectDLQPrefix + "." + reason
}

// DrawResultsMsgID is the dedupe id used when exporting a lottery's results.
func DrawResultsMsgID(lotteryID int64) string {
	return "draw-results-" + strconv.FormatInt(lotteryID, 10)
}
