package cmd

import (
	"github.com/spf13/cobra"
)

var exportsCmd = &cobra.Command{
	Use:   "exports",
	Short: "Export draw results",
}

var exportsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Publish results of every drawn, unexported lottery",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := drawClient(cmd).RunExports(cmd.Context())
		if err != nil {
			return err
		}
		return printBatch(printer(cmd), "exported", res)
	},
}

func init() {
	rootCmd.AddCommand(exportsCmd)
	exportsCmd.AddCommand(exportsRunCmd)
}
