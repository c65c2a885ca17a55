package messaging

import (
	"strings"
	"testing"
)

func TestSubjectConstants_FollowNamingConvention(t *testing.T) {
	subjects := []string{
		SubjectScheduleCreated,
		SubjectWinnersConfigured,
		SubjectTicketsSold,
		SubjectResultsImported,
		SubjectResultsDrawn,
	}

	for _, subject := range subjects {
		parts := strings.Split(subject, ".")
		if len(parts) != 3 {
			t.Errorf("subject %q should have 3 parts, got %d", subject, len(parts))
		}
		if parts[0] != "lottery" {
			t.Errorf("subject %q should be in the lottery domain", subject)
		}
	}
}

func TestSubjectConstants_Unique(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range []string{
		SubjectScheduleCreated, SubjectWinnersConfigured, SubjectTicketsSold,
		SubjectResultsImported, SubjectResultsDrawn,
	} {
		if seen[s] {
			t.Errorf("duplicate subject %q", s)
		}
		seen[s] = true
	}

	consumers := map[string]bool{}
	for _, c := range []string{ConsumerSchedule, ConsumerWinnerConfig, ConsumerTicketSales, ConsumerWinnerResults} {
		if consumers[c] {
			t.Errorf("duplicate consumer %q", c)
		}
		consumers[c] = true
	}
}

func TestDLQSubject(t *testing.T) {
	tests := []struct {
		reason   string
		expected string
	}{
		{"validation", "lottery.dlq.validation"},
		{"configuration", "lottery.dlq.configuration"},
		{"", "lottery.dlq.unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := DLQSubject(tt.reason); got != tt.expected {
				t.Errorf("DLQSubject(%q) = %q, expected %q", tt.reason, got, tt.expected)
			}
		})
	}
}

func TestDrawResultsMsgID(t *testing.T) {
	if got := DrawResultsMsgID(42); got != "draw-results-42" {
		t.Errorf("unexpected msg id %q", got)
	}
}
