package hxmcli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	analyzeTask string
	analyzeFile string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a task-routed analysis over a snippet",
	Long: `Sends content to the /analyze endpoint. The server picks the best
installed model for the task, detects the content language, and returns
the model response. Content is read from --file or stdin.`,
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		content, err := readContent()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		payload := map[string]string{
			"task":    analyzeTask,
			"content": content,
		}
		var result AnalyzeResult
		if err := client.PostJSON("/analyze", payload, &result); err != nil {
			exitWithError(cmd, err)
			return
		}
		if err := writeOutput(cmd, result); err != nil {
			exitWithError(cmd, err)
			return
		}
		if outputFormat == "json" {
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Model: %s\n", result.Model)
		if result.Language != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Language: %s\n", result.Language)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Duration: %s, Tokens: %d\n\n",
			(time.Duration(result.DurationMs) * time.Millisecond).Round(time.Millisecond), result.Tokens)
		fmt.Fprintln(cmd.OutOrStdout(), result.Response)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeTask, "task", "", "Task profile to route with (required)")
	analyzeCmd.Flags().StringVar(&analyzeFile, "file", "", "Read content from file instead of stdin")
	_ = analyzeCmd.MarkFlagRequired("task")
}

func readContent() (string, error) {
	if analyzeFile != "" {
		data, err := os.ReadFile(analyzeFile)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("no content provided; pipe input or use --file")
	}
	return string(data), nil
}

// AnalyzeResult mirrors the /analyze response payload.
type AnalyzeResult struct {
	Model      string `json:"model"`
	Task       string `json:"task"`
	Language   string `json:"language"`
	Response   string `json:"response"`
	DurationMs int64  `json:"durationMs"`
	Tokens     int    `json:"tokens"`
}
