package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Show version",
	GroupID: "system",
	Run: func(cmd *cobra.Command, args []string) {
		if short, _ := cmd.Flags().GetBool("short"); short {
			fmt.Print(versionStr)
			return
		}
		fmt.Printf("desk version %s\n", versionStr)
	},
}

func init() {
	versionCmd.Flags().Bool("short", false, "Print only the version")
	rootCmd.AddCommand(versionCmd)
}
