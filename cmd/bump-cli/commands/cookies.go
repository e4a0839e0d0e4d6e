package commands

import (
	"fmt"
	"listingbump/internal/bump"
	"listingbump/internal/components/telemetry"
	"listingbump/internal/credentials"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var printScript *bool

func init() {
	printScript = cookiesCmd.Flags().Bool("script", false, "Print the browser console script that exports the site's cookies.")
	rootCmd.AddCommand(cookiesCmd)
}

var cookiesCmd = &cobra.Command{
	Use:   "cookies [--script]",
	Short: "Shows which of the cookies a logged in session needs were found.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		loader := cfg.Loader(telemetry.SlogAPI{})

		if *printScript {
			fmt.Print(credentials.CookieFinderScript(siteOf(loader)))
			return nil
		}

		cookies, source, err := loader.Cookies()
		if err != nil {
			fmt.Println(hint(false, err))
			return exitError{code: 1}
		}
		status := credentials.CheckCookies(cookies, cfg.EssentialCookies)
		renderCookieStatus(status, source)

		if !status.Ready {
			fmt.Printf("missing essential cookies: %v\n", status.Missing())
			return exitError{code: 1}
		}
		fmt.Println("essential cookies present")
		return nil
	},
}

func siteOf(loader credentials.Loader) string {
	bumpUrl, _, err := loader.BumpUrl()
	if err != nil {
		return "the listing site"
	}
	target, err := bump.ParseTarget(bumpUrl)
	if err != nil {
		return "the listing site"
	}
	return target.SiteUrl
}

func renderCookieStatus(status credentials.Status, source credentials.Source) {
	t := newTable()
	t.SetTitle(fmt.Sprintf("%d cookies from %s", status.Total, source))
	t.AppendHeader(table.Row{"Cookie", "Essential", "Status", "Value"})
	for _, cookie := range status.Cookies {
		essential := ""
		if cookie.Essential {
			essential = "yes"
		}
		state := "missing"
		if cookie.Present {
			state = "present"
		}
		t.AppendRow(table.Row{cookie.Name, essential, state, cookie.Preview})
	}
	t.Render()
}
