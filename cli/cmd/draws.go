package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lottoworks/drawstack/cli/internal/client"
	"github.com/lottoworks/drawstack/cli/pkg/output"
)

var drawsCmd = &cobra.Command{
	Use:   "draws",
	Short: "Run lottery draws",
}

var drawsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Draw every due lottery now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := drawClient(cmd).RunDraws(cmd.Context())
		if err != nil {
			return err
		}
		return printBatch(printer(cmd), "drawn", res)
	},
}

var drawsTriggerCmd = &cobra.Command{
	Use:   "trigger <lottery-id>",
	Short: "Draw a single due lottery now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseLotteryID(args[0])
		if err != nil {
			return err
		}
		outcome, err := drawClient(cmd).DrawLottery(cmd.Context(), id)
		if err != nil {
			return err
		}

		p := printer(cmd)
		return p.Print(outcome, func() *output.Table {
			if outcome.Reused {
				p.Warn("lottery %d already had winners recorded, reused them", id)
			}
			p.Success("lottery %d drawn: %d winners from %d tickets", id, len(outcome.Winners), outcome.PoolSize)
			if outcome.Seed != "" {
				p.Info("seed %s", outcome.Seed)
			}
			tbl := output.NewTable("POSITION", "TICKET")
			for _, w := range outcome.Winners {
				tbl.AddRow(strconv.Itoa(w.WinnerPosition), w.TicketNumber)
			}
			return tbl
		})
	},
}

// printBatch renders a draw or export batch, listing failures in table mode.
func printBatch(p *output.Printer, verb string, res *client.BatchResult) error {
	return p.Print(res, func() *output.Table {
		if res.Processed == 0 {
			p.Info("nothing to do")
		} else {
			p.Success("%d of %d lotteries %s", len(res.Succeeded), res.Processed, verb)
		}
		tbl := output.NewTable("LOTTERY", "PERMANENT", "ERROR")
		for _, f := range res.Failed {
			tbl.AddRow(strconv.FormatInt(f.LotteryID, 10), strconv.FormatBool(f.Permanent), f.Error)
		}
		return tbl
	})
}

func init() {
	rootCmd.AddCommand(drawsCmd)
	drawsCmd.AddCommand(drawsRunCmd)
	drawsCmd.AddCommand(drawsTriggerCmd)
}
