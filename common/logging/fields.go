package logging

import "log/slog"

// Common field names for consistent logging across services.
const (
	FieldService      = "service"
	FieldComponent    = "component"
	FieldRequestID    = "request_id"
	FieldLotteryID    = "lottery_id"
	FieldLotteryType  = "lottery_type"
	FieldTicketNumber = "ticket_number"
	FieldSubject      = "subject"
	FieldConsumer     = "consumer"
	FieldDuration     = "duration_ms"
	FieldError        = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// LotteryID returns a slog attribute for a lottery identifier.
func LotteryID(id int64) slog.Attr {
	return slog.Int64(FieldLotteryID, id)
}

// LotteryType returns a slog attribute for a lottery type.
func LotteryType(t string) slog.Attr {
	return slog.String(FieldLotteryType, t)
}

// TicketNumber returns a slog attribute for a ticket number.
func TicketNumber(n string) slog.Attr {
	return slog.String(FieldTicketNumber, n)
}

// Subject returns a slog attribute for a message subject.
func Subject(s string) slog.Attr {
	return slog.String(FieldSubject, s)
}

// Consumer returns a slog attribute for a durable consumer name.
func Consumer(name string) slog.Attr {
	return slog.String(FieldConsumer, name)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error. A nil error yields an empty value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
