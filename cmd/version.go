package cmd

import (
	"fmt"

	"github.com/longkey1/llmchat/internal/version"
	"github.com/spf13/cobra"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the llmchat version",
	Long:  `Print the llmchat version, commit, build time, Go version and platform.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := version.Info()
		if short, _ := cmd.Flags().GetBool("short"); short {
			out = version.Short()
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().BoolP("short", "s", false, "print only the version number")
}
