// Package seeder generates fake lottery feed data and publishes it to the
// inbound JetStream subjects.
package seeder

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/lottoworks/drawstack/draw/pkg/engine"
	"github.com/lottoworks/drawstack/draw/pkg/model"
)

// Plan is the full set of feed messages for one seeding run.
type Plan struct {
	Schedules     []model.ScheduleRecord `json:"schedules"`
	WinnerConfigs []model.WinnerConfig   `json:"winner_configs"`
	Sales         []model.TicketSale     `json:"ticket_sales"`
}

// Generate builds a plan of schedules, winner counts and ticket sales. now
// anchors the draw times.
func Generate(cfg Config, now time.Time) Plan {
	seed := cfg.Seed
	if seed == 0 {
		seed = now.UnixNano()
	}
	faker := gofakeit.New(seed)

	plan := Plan{}
	baseID := int64(faker.Number(1_000_000, 8_999_999))
	drawAt := now.Add(cfg.DrawIn).UTC().Truncate(time.Second)

	for i := 0; i < cfg.Lotteries; i++ {
		id := baseID + int64(i)
		lotteryType := model.LotteryType(faker.RandomString(cfg.Types))

		plan.Schedules = append(plan.Schedules, model.ScheduleRecord{
			ID:          id,
			Type:        lotteryType,
			Name:        fmt.Sprintf("%s %s", faker.City(), faker.RandomString([]string{"Classic", "Express", "Mega", "Weekend"})),
			SaleStartAt: drawAt.Add(-72 * time.Hour),
			SaleEndAt:   drawAt.Add(-time.Minute),
			DrawAt:      drawAt,
		})

		sold := cfg.TicketsPerLottery
		winners := engine.Percent(cfg.WinnerPercent).Resolve(sold)
		if winners == 0 && sold > 0 {
			winners = 1
		}
		participants := faker.Number(max(sold/3, 1), max(sold, 1))
		plan.WinnerConfigs = append(plan.WinnerConfigs, model.WinnerConfig{
			LotteryID:         id,
			WinnerCount:       winners,
			TotalParticipants: &participants,
			TotalTicketsSold:  &sold,
		})

		seen := make(map[string]struct{}, sold)
		for len(seen) < sold {
			number := faker.LetterN(2) + "-" + faker.DigitN(8)
			if _, ok := seen[number]; ok {
				continue
			}
			seen[number] = struct{}{}
			plan.Sales = append(plan.Sales, model.TicketSale{
				LotteryID:    id,
				Type:         lotteryType,
				TicketNumber: number,
			})
		}
	}
	return plan
}
