package hxmcli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	pullTag     string
	pullFollow  bool
	pullTimeout time.Duration
)

var pullCmd = &cobra.Command{
	Use:   "pull <model>",
	Short: "Download a model into the runtime",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		payload := map[string]string{"model": args[0]}
		if pullTag != "" {
			payload["tag"] = pullTag
		}
		var job DownloadJob
		if err := client.PostJSON("/models/download", payload, &job); err != nil {
			exitWithError(cmd, err)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Download %s started for %s\n", job.ID, job.ModelName)

		if !pullFollow {
			return
		}
		ctx := cmd.Context()
		if pullTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, pullTimeout)
			defer cancel()
		}
		if err := watchDownload(ctx, cmd, client, job.ID); err != nil {
			exitWithError(cmd, err)
		}
	},
}

func init() {
	pullCmd.Flags().StringVar(&pullTag, "tag", "", "Model tag (e.g. 13b)")
	pullCmd.Flags().BoolVar(&pullFollow, "follow", false, "Stream progress until the download finishes")
	pullCmd.Flags().DurationVar(&pullTimeout, "timeout", 0, "Stop following after the specified duration (0 = wait forever)")
}

func watchDownload(ctx context.Context, cmd *cobra.Command, client *Client, jobID string) error {
	terminalStates := map[string]bool{
		"completed": true,
		"failed":    true,
		"cancelled": true,
		"timed_out": true,
	}

	for {
		finished := false
		handler := func(ev EventEnvelope) bool {
			if !strings.HasPrefix(ev.Type, "download.") {
				return true
			}
			var job DownloadJob
			if err := json.Unmarshal(ev.Data, &job); err != nil {
				printErrorLine("event decode error: %v", err)
				return true
			}
			if job.ID != jobID {
				return true
			}
			printDownloadProgress(cmd, job)
			if terminalStates[job.State] {
				finished = true
				return false
			}
			return true
		}

		err := client.StreamEvents(ctx, handler)
		if err != nil && !errors.Is(err, context.Canceled) {
			printErrorLine("event stream interrupted: %v", err)
		}

		var job DownloadJob
		if err := client.GetJSON("/downloads/"+jobID, &job); err != nil {
			return err
		}
		if terminalStates[job.State] {
			fmt.Fprintf(cmd.OutOrStdout(), "Final state: %s\n", job.State)
			if job.Error != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Error: %s\n", job.Error)
			}
			return nil
		}

		if finished {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func printDownloadProgress(cmd *cobra.Command, job DownloadJob) {
	line := fmt.Sprintf("[%s] %-12s %s / %s (%s)",
		shortID(job.ID),
		job.State,
		humanBytes(job.BytesDownloaded),
		humanBytes(job.TotalBytes),
		progressPercent(job.BytesDownloaded, job.TotalBytes))
	if job.SpeedBytesPerSec > 0 {
		line += fmt.Sprintf(" %s/s", humanBytes(int64(job.SpeedBytesPerSec)))
	}
	if job.EstimatedSecondsRemaining > 0 {
		line += fmt.Sprintf(" ETA %s", humanDuration(time.Duration(job.EstimatedSecondsRemaining*float64(time.Second))))
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
