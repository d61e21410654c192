package hxmcli

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

var downloadsCmd = &cobra.Command{
	Use:   "downloads",
	Short: "Inspect model downloads",
}

var downloadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active downloads",
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		var resp struct {
			Downloads []DownloadJob `json:"downloads"`
		}
		if err := client.GetJSON("/downloads", &resp); err != nil {
			exitWithError(cmd, err)
			return
		}
		if err := writeOutput(cmd, resp.Downloads); err != nil {
			exitWithError(cmd, err)
			return
		}
		if outputFormat == "json" {
			return
		}
		printDownloadTable(resp.Downloads)
	},
}

var downloadsHistoryLimit int

var downloadsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent finished downloads",
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		path := "/downloads/history"
		if downloadsHistoryLimit > 0 {
			query := url.Values{}
			query.Set("limit", fmt.Sprintf("%d", downloadsHistoryLimit))
			path += "?" + query.Encode()
		}
		var resp struct {
			History []DownloadJob `json:"history"`
		}
		if err := client.GetJSON(path, &resp); err != nil {
			exitWithError(cmd, err)
			return
		}
		if err := writeOutput(cmd, resp.History); err != nil {
			exitWithError(cmd, err)
			return
		}
		if outputFormat == "json" {
			return
		}
		printDownloadTable(resp.History)
	},
}

var downloadsGetCmd = &cobra.Command{
	Use:   "get <download-id>",
	Short: "Describe a download",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		var job DownloadJob
		if err := client.GetJSON("/downloads/"+args[0], &job); err != nil {
			exitWithError(cmd, err)
			return
		}
		if err := writeOutput(cmd, job); err != nil {
			exitWithError(cmd, err)
			return
		}
		if outputFormat == "json" {
			return
		}
		tw := newTable()
		fmt.Fprintf(tw, "Field\tValue\n")
		fmt.Fprintf(tw, "ID\t%s\n", job.ID)
		fmt.Fprintf(tw, "Model\t%s\n", job.ModelName)
		fmt.Fprintf(tw, "State\t%s\n", job.State)
		fmt.Fprintf(tw, "Downloaded\t%s\n", humanBytes(job.BytesDownloaded))
		fmt.Fprintf(tw, "Total\t%s\n", humanBytes(job.TotalBytes))
		fmt.Fprintf(tw, "Started\t%s\n", job.StartTime.Format(time.RFC3339))
		if !job.CompletedTime.IsZero() {
			fmt.Fprintf(tw, "Finished\t%s\n", job.CompletedTime.Format(time.RFC3339))
		}
		if job.Error != "" {
			fmt.Fprintf(tw, "Error\t%s\n", job.Error)
		}
		flushTable(tw)
	},
}

var downloadsCancelCmd = &cobra.Command{
	Use:   "cancel <download-id>",
	Short: "Cancel an active download",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		if err := client.PostJSON("/downloads/"+args[0]+"/cancel", nil, nil); err != nil {
			exitWithError(cmd, err)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Download %s cancelled.\n", args[0])
	},
}

func init() {
	downloadsHistoryCmd.Flags().IntVar(&downloadsHistoryLimit, "limit", 20, "Maximum entries to return")
	downloadsCmd.AddCommand(downloadsListCmd)
	downloadsCmd.AddCommand(downloadsHistoryCmd)
	downloadsCmd.AddCommand(downloadsGetCmd)
	downloadsCmd.AddCommand(downloadsCancelCmd)
}

// DownloadJob mirrors the API download payload.
type DownloadJob struct {
	ID                        string    `json:"id"`
	ModelName                 string    `json:"modelName"`
	State                     string    `json:"state"`
	BytesDownloaded           int64     `json:"bytesDownloaded"`
	TotalBytes                int64     `json:"totalBytes"`
	StartTime                 time.Time `json:"startTime"`
	CompletedTime             time.Time `json:"completedTime,omitempty"`
	SpeedBytesPerSec          float64   `json:"downloadSpeedBytesPerSec,omitempty"`
	EstimatedSecondsRemaining float64   `json:"estimatedTimeRemaining,omitempty"`
	Error                     string    `json:"error,omitempty"`
}

func printDownloadTable(jobs []DownloadJob) {
	tw := newTable()
	fmt.Fprintf(tw, "ID\tMODEL\tSTATE\tPROGRESS\tSTARTED\n")
	for _, job := range jobs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			shortID(job.ID),
			job.ModelName,
			job.State,
			progressPercent(job.BytesDownloaded, job.TotalBytes),
			relativeTime(job.StartTime))
	}
	flushTable(tw)
}
