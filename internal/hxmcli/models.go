package hxmcli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect installed models",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed models",
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		var resp struct {
			Models []Model `json:"models"`
		}
		if err := client.GetJSON("/models", &resp); err != nil {
			exitWithError(cmd, err)
			return
		}
		if err := writeOutput(cmd, resp.Models); err != nil {
			exitWithError(cmd, err)
			return
		}
		if outputFormat == "json" {
			return
		}
		tw := newTable()
		fmt.Fprintf(tw, "NAME\tSIZE\tMODIFIED\n")
		for _, model := range resp.Models {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", model.Name, humanBytes(model.Size), relativeTime(model.ModifiedAt))
		}
		flushTable(tw)
	},
}

var modelsGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Describe a model",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		var details ModelDetails
		if err := client.GetJSON("/models/"+args[0], &details); err != nil {
			exitWithError(cmd, err)
			return
		}
		if err := writeOutput(cmd, details); err != nil {
			exitWithError(cmd, err)
			return
		}
		if outputFormat == "json" {
			return
		}
		tw := newTable()
		fmt.Fprintf(tw, "Field\tValue\n")
		fmt.Fprintf(tw, "Name\t%s\n", args[0])
		if details.Parameters != "" {
			fmt.Fprintf(tw, "Parameters\t%s\n", details.Parameters)
		}
		if details.License != "" {
			fmt.Fprintf(tw, "License\t%s\n", details.License)
		}
		for key, value := range details.Details {
			fmt.Fprintf(tw, "%s\t%s\n", key, value)
		}
		flushTable(tw)
	},
}

var modelsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a model from the runtime",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		if err := client.DeleteJSON("/models/"+args[0], nil); err != nil {
			exitWithError(cmd, err)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Model %q deleted.\n", args[0])
	},
}

var modelsVerifyCmd = &cobra.Command{
	Use:   "verify <name>",
	Short: "Run a minimal inference against a model",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, _, err := mustClient()
		if err != nil {
			exitWithError(cmd, err)
			return
		}
		var result struct {
			Model    string `json:"model"`
			Verified bool   `json:"verified"`
			Error    string `json:"error"`
		}
		payload := map[string]string{"model": args[0]}
		if err := client.PostJSON("/models/verify", payload, &result); err != nil {
			exitWithError(cmd, err)
			return
		}
		if result.Verified {
			fmt.Fprintf(cmd.OutOrStdout(), "Model %q verified.\n", result.Model)
			return
		}
		printErrorLine("Model %q failed verification: %s", result.Model, result.Error)
	},
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsGetCmd)
	modelsCmd.AddCommand(modelsDeleteCmd)
	modelsCmd.AddCommand(modelsVerifyCmd)
}

// Model mirrors the runtime model listing payload.
type Model struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest,omitempty"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ModelDetails mirrors the model detail payload.
type ModelDetails struct {
	License    string            `json:"license,omitempty"`
	Parameters string            `json:"parameters,omitempty"`
	Template   string            `json:"template,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}
