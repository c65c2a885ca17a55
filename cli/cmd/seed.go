package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lottoworks/drawstack/cli/internal/seeder"
	"github.com/lottoworks/drawstack/cli/pkg/output"
	natsclient "github.com/lottoworks/drawstack/common/messaging/nats"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Publish fake schedules, winner counts and ticket sales",
	Long: `Generate fake lottery feed data and publish it to the inbound JetStream subjects.

Configuration cascade (priority order):
  1. Command-line flags
  2. ./seeder.yaml (project directory)
  3. ~/.drawctl/seeder.yaml (user directory)
  4. Built-in defaults

Examples:
  drawctl seed
  drawctl seed --lotteries 10 --tickets 500 --draw-in 5m
  drawctl seed --seed 42 --dry-run -o json`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	seederCfgFile, _ := cmd.Flags().GetString("seeder-config")
	scfg, err := seeder.LoadConfig(seederCfgFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("lotteries") {
		scfg.Lotteries, _ = flags.GetInt("lotteries")
	}
	if flags.Changed("tickets") {
		scfg.TicketsPerLottery, _ = flags.GetInt("tickets")
	}
	if flags.Changed("draw-in") {
		scfg.DrawIn, _ = flags.GetDuration("draw-in")
	}
	if flags.Changed("percent") {
		scfg.WinnerPercent, _ = flags.GetFloat64("percent")
	}
	if flags.Changed("seed") {
		scfg.Seed, _ = flags.GetInt64("seed")
	}
	if err := scfg.Validate(); err != nil {
		return err
	}

	plan := seeder.Generate(*scfg, time.Now())
	p := printer(cmd)

	if dryRun, _ := flags.GetBool("dry-run"); dryRun {
		return p.Print(plan, func() *output.Table { return planTable(plan) })
	}

	natsURL, _ := flags.GetString("nats")
	if natsURL == "" {
		natsURL = activeProfile(cmd).NATSURL
	}
	natsCfg := natsclient.DefaultConfig()
	natsCfg.URL = natsURL
	natsCfg.Name = "drawctl-seed"
	natsCfg.MaxReconnects = 3
	js, err := natsclient.NewJetStreamClient(natsCfg)
	if err != nil {
		return fmt.Errorf("connect to NATS at %s: %w", natsURL, err)
	}
	defer js.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()

	if _, err := js.CreateOrUpdateStream(ctx, natsclient.LotteryFeedsStream); err != nil {
		return err
	}

	runner := seeder.NewRunner(js)
	stats, err := runner.Run(ctx, plan)
	if err != nil {
		return err
	}

	return p.Print(stats, func() *output.Table {
		p.Success("published %d schedules, %d winner counts and %d ticket sales to %s",
			stats.Schedules, stats.WinnerConfigs, stats.Sales, natsURL)
		return planTable(plan)
	})
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().String("seeder-config", "", "seeder config file (default: ./seeder.yaml or ~/.drawctl/seeder.yaml)")
	seedCmd.Flags().String("nats", "", "NATS URL, overrides the profile")
	seedCmd.Flags().Int("lotteries", 3, "number of lotteries to schedule")
	seedCmd.Flags().Int("tickets", 100, "tickets sold per lottery")
	seedCmd.Flags().Duration("draw-in", time.Minute, "draw time relative to now")
	seedCmd.Flags().Float64("percent", 0.05, "winner count as a fraction of tickets sold")
	seedCmd.Flags().Int64("seed", 0, "random seed for reproducible data")
	seedCmd.Flags().Bool("dry-run", false, "print the generated plan without publishing")
}

func planTable(plan seeder.Plan) *output.Table {
	sales := make(map[int64]int, len(plan.Schedules))
	for _, s := range plan.Sales {
		sales[s.LotteryID]++
	}
	tbl := output.NewTable("ID", "TYPE", "NAME", "DRAW AT", "TICKETS", "WINNERS")
	for i, s := range plan.Schedules {
		tbl.AddRow(
			strconv.FormatInt(s.ID, 10),
			string(s.Type),
			s.Name,
			s.DrawAt.Local().Format(time.DateTime),
			strconv.Itoa(sales[s.ID]),
			strconv.Itoa(plan.WinnerConfigs[i].WinnerCount),
		)
	}
	return tbl
}
