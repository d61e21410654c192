package hxmcli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var perfCmd = &cobra.Command{
	Use:   "perf",
	Short: "Inspect model performance",
}

var perfCompareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Rank tracked models",
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		var comparison Comparison
		if err := client.GetJSON("/metrics/models", &comparison); err != nil {
			exitWithError(cmd, err)
			return
		}
		if err := writeOutput(cmd, comparison); err != nil {
			exitWithError(cmd, err)
			return
		}
		if outputFormat == "json" {
			return
		}
		tw := newTable()
		fmt.Fprintf(tw, "MODEL\tAVG RESPONSE\tTOKENS/S\tREQUESTS\tLAST USED\n")
		for name, metrics := range comparison.Models {
			fmt.Fprintf(tw, "%s\t%s\t%.1f\t%d\t%s\n",
				name,
				time.Duration(metrics.AvgResponseTime).Round(time.Millisecond),
				metrics.TokensPerSecond,
				metrics.TotalRequests,
				relativeTime(metrics.LastUsed))
		}
		flushTable(tw)
		if comparison.Fastest != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "\nFastest: %s\n", comparison.Fastest)
		}
		if comparison.MostEfficient != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Most efficient: %s\n", comparison.MostEfficient)
		}
		if comparison.MostUsed != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Most used: %s\n", comparison.MostUsed)
		}
	},
}

var perfGetCmd = &cobra.Command{
	Use:   "get <model>",
	Short: "Show metrics for one model",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		var metrics ModelMetrics
		if err := client.GetJSON("/metrics/models/"+args[0], &metrics); err != nil {
			exitWithError(cmd, err)
			return
		}
		if err := writeOutput(cmd, metrics); err != nil {
			exitWithError(cmd, err)
			return
		}
		if outputFormat == "json" {
			return
		}
		tw := newTable()
		fmt.Fprintf(tw, "Field\tValue\n")
		fmt.Fprintf(tw, "Model\t%s\n", metrics.ModelName)
		fmt.Fprintf(tw, "Avg Response\t%s\n", time.Duration(metrics.AvgResponseTime).Round(time.Millisecond))
		fmt.Fprintf(tw, "Tokens/s\t%.1f\n", metrics.TokensPerSecond)
		fmt.Fprintf(tw, "Requests\t%d\n", metrics.TotalRequests)
		fmt.Fprintf(tw, "Last Used\t%s\n", relativeTime(metrics.LastUsed))
		flushTable(tw)
	},
}

func init() {
	perfCmd.AddCommand(perfCompareCmd)
	perfCmd.AddCommand(perfGetCmd)
}

// ModelMetrics mirrors the API metrics payload. Durations arrive as
// nanosecond integers.
type ModelMetrics struct {
	ModelName       string    `json:"modelName"`
	AvgResponseTime int64     `json:"avgResponseTime"`
	TokensPerSecond float64   `json:"tokensPerSecond"`
	TotalRequests   int64     `json:"totalRequests"`
	LastUsed        time.Time `json:"lastUsed"`
}

// Comparison mirrors the API comparison payload.
type Comparison struct {
	Models        map[string]ModelMetrics `json:"models"`
	Fastest       string                  `json:"fastest,omitempty"`
	MostEfficient string                  `json:"mostEfficient,omitempty"`
	MostUsed      string                  `json:"mostUsed,omitempty"`
}
