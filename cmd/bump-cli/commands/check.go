package commands

import (
	"fmt"
	"listingbump/internal/bump"
	"listingbump/internal/components/telemetry"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Parses the bump url and checks that the cookies are logged in, without bumping.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		opts, err := cfg.Options()
		if err != nil {
			return err
		}
		opts.RequireAuth = true

		tel := telemetry.SlogAPI{}
		job, err := cfg.Loader(tel).Job()
		if err != nil {
			fmt.Println(hint(false, err))
			return err
		}
		bumper, err := bump.NewBumper(job, opts, tel)
		if err != nil {
			fmt.Println(hint(false, err))
			return err
		}

		t := newTable()
		t.AppendRows([]table.Row{
			{"Node", bumper.Target.NodeId},
			{"Destination", bumper.Target.Destination},
			{"Site", bumper.Target.SiteUrl},
			{"Account", bumper.ResolveIdentity(cmd.Context()).String()},
		})
		t.Render()

		err = bumper.Authenticate(cmd.Context())
		if err != nil {
			fmt.Println(hint(false, err))
			return exitError{code: 1}
		}
		fmt.Println("session is logged in")
		return nil
	},
}
