package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lottoworks/drawstack/cli/internal/client"
	"github.com/lottoworks/drawstack/cli/internal/config"
	"github.com/lottoworks/drawstack/cli/pkg/output"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "drawctl",
	Short: "Lottery draw stack CLI",
	Long: `drawctl is the command-line interface for the lottery draw service.

Trigger draws and result exports, inspect lotteries and their winners,
simulate draws locally and seed fake feed data for development.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and prints any error.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		output.New(output.FormatTable, os.Stdout, os.Stderr).Error("%v", err)
		return err
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.drawctl/config.yaml)")
	rootCmd.PersistentFlags().String("profile", "", "profile to use (default: current profile)")
	rootCmd.PersistentFlags().String("server", "", "draw service URL, overrides the profile")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "output format: table, json, yaml")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}
}

func printer(cmd *cobra.Command) *output.Printer {
	format, _ := cmd.Flags().GetString("output")
	return output.New(format, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func activeProfile(cmd *cobra.Command) config.Profile {
	name, _ := cmd.Flags().GetString("profile")
	return cfg.Resolve(name)
}

func drawClient(cmd *cobra.Command) *client.DrawClient {
	if server, _ := cmd.Flags().GetString("server"); server != "" {
		return client.NewDrawClient(server)
	}
	return client.NewDrawClient(activeProfile(cmd).ServerURL)
}

func parseLotteryID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid lottery id %q", arg)
	}
	return id, nil
}
