package hxmcli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show service status",
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		var info SystemInfo
		if err := client.GetJSON("/system/info", &info); err != nil {
			exitWithError(cmd, err)
			return
		}
		if err := writeOutput(cmd, info); err != nil {
			exitWithError(cmd, err)
			return
		}
		if outputFormat == "json" {
			return
		}

		tw := newTable()
		fmt.Fprintf(tw, "Field\tValue\n")
		fmt.Fprintf(tw, "Version\t%s\n", info.Version)
		fmt.Fprintf(tw, "Active Downloads\t%d\n", info.ActiveDownloads)
		if len(info.Tasks) > 0 {
			fmt.Fprintf(tw, "Tasks\t%s\n", strings.Join(info.Tasks, ", "))
		}
		flushTable(tw)
	},
}

type SystemInfo struct {
	Version         string   `json:"version"`
	ActiveDownloads int      `json:"activeDownloads"`
	Tasks           []string `json:"tasks"`
}
