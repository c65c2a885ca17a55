package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lottoworks/drawstack/cli/pkg/output"
	"github.com/lottoworks/drawstack/draw/pkg/engine"
	"github.com/lottoworks/drawstack/draw/pkg/model"
)

// SimulationResult is the output of a local draw.
type SimulationResult struct {
	PoolSize int            `json:"pool_size"`
	Quota    string         `json:"quota"`
	Winners  []model.Winner `json:"winners"`
	Seed     string         `json:"seed,omitempty"`
}

var simulateCmd = &cobra.Command{
	Use:   "simulate [ticket...]",
	Short: "Run a draw locally without touching the service",
	Long: `Draw winners from the given tickets with the same engine the draw service uses.

The quota is either a fixed count (--quota) or a fraction of the pool
(--percent). Pass the seed printed by a previous run with --seed to
reproduce that draw exactly.

Examples:
  drawctl simulate --quota 2 T1 T2 T3 T4 T5
  drawctl simulate --percent 0.4 --file tickets.txt
  drawctl simulate --quota 2 --seed <hex> T1 T2 T3 T4 T5`,
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	pool := append([]string{}, args...)
	if file, _ := cmd.Flags().GetString("file"); file != "" {
		fromFile, err := readTickets(file)
		if err != nil {
			return err
		}
		pool = append(pool, fromFile...)
	}
	if len(pool) == 0 {
		return errors.New("no tickets given")
	}

	quota, err := simulationQuota(cmd)
	if err != nil {
		return err
	}

	eng := engine.New()
	if seed, _ := cmd.Flags().GetString("seed"); seed != "" {
		if eng, err = engine.Replay(seed); err != nil {
			return err
		}
	}

	res := eng.Draw(pool, quota)
	out := SimulationResult{
		PoolSize: len(pool),
		Quota:    quota.String(),
		Winners:  res.Winners,
		Seed:     res.Seed,
	}

	p := printer(cmd)
	return p.Print(out, func() *output.Table {
		p.Info("%d winners from %d tickets (%s)", len(out.Winners), out.PoolSize, out.Quota)
		if out.Seed != "" {
			p.Info("seed %s", out.Seed)
		}
		tbl := output.NewTable("POSITION", "TICKET")
		for _, w := range out.Winners {
			tbl.AddRow(strconv.Itoa(w.WinnerPosition), w.TicketNumber)
		}
		return tbl
	})
}

func simulationQuota(cmd *cobra.Command) (engine.Quota, error) {
	quotaSet := cmd.Flags().Changed("quota")
	percentSet := cmd.Flags().Changed("percent")
	switch {
	case quotaSet && percentSet:
		return engine.Quota{}, errors.New("--quota and --percent are mutually exclusive")
	case percentSet:
		p, _ := cmd.Flags().GetFloat64("percent")
		if p < 0 || p > 1 {
			return engine.Quota{}, fmt.Errorf("--percent must be within [0,1], got %v", p)
		}
		return engine.Percent(p), nil
	default:
		n, _ := cmd.Flags().GetInt("quota")
		if n < 0 {
			return engine.Quota{}, fmt.Errorf("--quota must not be negative, got %d", n)
		}
		return engine.Fixed(n), nil
	}
}

// readTickets reads one ticket number per line, skipping blanks.
func readTickets(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tickets []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			tickets = append(tickets, line)
		}
	}
	return tickets, scanner.Err()
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().Int("quota", 1, "number of winners to draw")
	simulateCmd.Flags().Float64("percent", 0, "fraction of the pool to draw, in [0,1]")
	simulateCmd.Flags().String("seed", "", "hex seed of a previous draw to replay")
	simulateCmd.Flags().String("file", "", "file with one ticket number per line")
}
