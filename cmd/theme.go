package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marcus/desk/internal/models"
	"github.com/marcus/desk/internal/output"
)

var themeCmd = &cobra.Command{
	Use:       "theme [light|dark]",
	Short:     "Show or set the display theme",
	GroupID:   "system",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(models.ThemeLight), string(models.ThemeDark)},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		if len(args) == 0 {
			fmt.Println(a.state.Theme())
			return nil
		}
		t := models.Theme(strings.ToLower(args[0]))
		if t != models.ThemeLight && t != models.ThemeDark {
			return fmt.Errorf("unknown theme %q (light or dark)", args[0])
		}
		if err := a.state.SetTheme(t); err != nil {
			return err
		}
		output.Success("Theme set to %s", t)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(themeCmd)
}
