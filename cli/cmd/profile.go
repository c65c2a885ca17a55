package cmd

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/lottoworks/drawstack/cli/pkg/output"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage connection profiles",
}

var profileSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Create or update a profile and make it current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		natsURL, _ := cmd.Flags().GetString("nats")
		if err := cfg.SaveProfile(args[0], server, natsURL); err != nil {
			return err
		}
		printer(cmd).Success("profile %s saved", args[0])
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List profiles",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names := make([]string, 0, len(cfg.Profiles))
		for name := range cfg.Profiles {
			names = append(names, name)
		}
		sort.Strings(names)

		return printer(cmd).Print(cfg.Profiles, func() *output.Table {
			tbl := output.NewTable("", "NAME", "SERVER", "NATS")
			for _, name := range names {
				current := ""
				if name == cfg.CurrentProfile {
					current = "*"
				}
				p := cfg.Profiles[name]
				tbl.AddRow(current, name, p.ServerURL, p.NATSURL)
			}
			return tbl
		})
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RemoveProfile(args[0]); err != nil {
			return err
		}
		printer(cmd).Success("profile %s removed", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileSetCmd, profileListCmd, profileRemoveCmd)

	profileSetCmd.Flags().String("nats", "", "NATS URL for the seed command")
}
