package cmd

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lottoworks/drawstack/cli/internal/client"
	"github.com/lottoworks/drawstack/cli/pkg/output"
)

var lotteryCmd = &cobra.Command{
	Use:     "lottery",
	Aliases: []string{"lotteries"},
	Short:   "Inspect lotteries",
}

var lotteryDueCmd = &cobra.Command{
	Use:   "due",
	Short: "List lotteries that are due for drawing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lotteries, err := drawClient(cmd).DueLotteries(cmd.Context())
		if err != nil {
			return err
		}
		p := printer(cmd)
		return p.Print(lotteries, func() *output.Table {
			if len(lotteries) == 0 {
				p.Info("No lotteries are due")
			}
			return lotteryTable(lotteries...)
		})
	},
}

var lotteryGetCmd = &cobra.Command{
	Use:   "get <lottery-id>",
	Short: "Show one lottery and its stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseLotteryID(args[0])
		if err != nil {
			return err
		}
		l, err := drawClient(cmd).GetLottery(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printer(cmd).Print(l, func() *output.Table {
			return lotteryTable(*l)
		})
	},
}

var lotteryWinnersCmd = &cobra.Command{
	Use:   "winners <lottery-id>",
	Short: "List a lottery's winners by position",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseLotteryID(args[0])
		if err != nil {
			return err
		}
		winners, err := drawClient(cmd).GetWinners(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printer(cmd).Print(winners, func() *output.Table {
			tbl := output.NewTable("POSITION", "TICKET")
			for _, w := range winners {
				tbl.AddRow(strconv.Itoa(w.WinnerPosition), w.TicketNumber)
			}
			return tbl
		})
	},
}

var lotteryTicketsCmd = &cobra.Command{
	Use:   "tickets <lottery-id>",
	Short: "List every ticket of a lottery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseLotteryID(args[0])
		if err != nil {
			return err
		}
		tickets, err := drawClient(cmd).GetTickets(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printer(cmd).Print(tickets, func() *output.Table {
			tbl := output.NewTable("TICKET", "WINNER", "POSITION")
			for _, t := range tickets {
				pos := "-"
				if t.WinnerPosition != nil {
					pos = strconv.Itoa(*t.WinnerPosition)
				}
				tbl.AddRow(t.TicketNumber, strconv.FormatBool(t.IsWinner), pos)
			}
			return tbl
		})
	},
}

var lotteryPurgeCmd = &cobra.Command{
	Use:   "purge <lottery-id>",
	Short: "Drop the ticket partition of an exported lottery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseLotteryID(args[0])
		if err != nil {
			return err
		}
		if err := drawClient(cmd).PurgeTickets(cmd.Context(), id); err != nil {
			return err
		}
		printer(cmd).Success("tickets of lottery %d dropped", id)
		return nil
	},
}

func lotteryTable(lotteries ...client.Lottery) *output.Table {
	tbl := output.NewTable("ID", "TYPE", "NAME", "DRAW AT", "WINNERS", "STAGE")
	for _, l := range lotteries {
		winners := "-"
		if l.WinnerCount != nil {
			winners = strconv.Itoa(*l.WinnerCount)
		}
		tbl.AddRow(
			strconv.FormatInt(l.ID, 10),
			string(l.Type),
			l.Name,
			l.DrawAt.Local().Format(time.DateTime),
			winners,
			string(l.Stage),
		)
	}
	return tbl
}

func init() {
	rootCmd.AddCommand(lotteryCmd)
	lotteryCmd.AddCommand(lotteryDueCmd, lotteryGetCmd, lotteryWinnersCmd, lotteryTicketsCmd, lotteryPurgeCmd)
}
