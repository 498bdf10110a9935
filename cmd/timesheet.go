package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/marcus/desk/internal/models"
	"github.com/marcus/desk/internal/output"
	"github.com/marcus/desk/internal/timesheet"
)

// Attendance and advances stay on this machine; nothing here pushes.

var timesheetCmd = &cobra.Command{
	Use:     "timesheet",
	Aliases: []string{"ts"},
	Short:   "Attendance and payroll advances (local only)",
	GroupID: "records",
}

var timesheetCheckinCmd = &cobra.Command{
	Use:   "checkin",
	Short: "Check in for today",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		var loc *models.GeoPoint
		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
			lat, _ := cmd.Flags().GetFloat64("lat")
			lng, _ := cmd.Flags().GetFloat64("lng")
			loc = &models.GeoPoint{Lat: lat, Lng: lng}
		}

		var entry models.TimeEntry
		err = a.state.UpdateTimesheet(func(es []models.TimeEntry) []models.TimeEntry {
			var out []models.TimeEntry
			out, entry = timesheet.CheckIn(es, a.user.ID, time.Now(), loc)
			return out
		})
		if err != nil {
			output.Warning("saved in memory only: %v", err)
		}
		output.Success("%s checked in at %s", a.user.Name, entry.CheckIn)
		return nil
	},
}

var timesheetCheckoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Check out for today",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		var (
			entry  models.TimeEntry
			outErr error
		)
		err = a.state.UpdateTimesheet(func(es []models.TimeEntry) []models.TimeEntry {
			out, e, err := timesheet.CheckOut(es, a.user.ID, time.Now())
			if err != nil {
				outErr = err
				return es
			}
			entry = e
			return out
		})
		if outErr != nil {
			return outErr
		}
		if err != nil {
			output.Warning("saved in memory only: %v", err)
		}
		output.Success("%s checked out at %s (%dh)", a.user.Name, entry.CheckOut, entry.TotalHours)
		return nil
	},
}

var timesheetMarkCmd = &cobra.Command{
	Use:   "mark USER DATE STATUS",
	Short: "Set a day's attendance (Present, Late, Sick, Leave, Absent, Fired or clear)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, date := args[0], args[1]
		if _, err := time.Parse(time.DateOnly, date); err != nil {
			return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
		}
		var status *models.AttendanceStatus
		if !strings.EqualFold(args[2], "clear") && args[2] != "" {
			s := models.AttendanceStatus(strings.ToUpper(args[2][:1]) + strings.ToLower(args[2][1:]))
			status = &s
		}

		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()
		if _, ok := a.state.User(userID); !ok {
			return fmt.Errorf("unknown user %q", userID)
		}

		var markErr error
		err = a.state.UpdateTimesheet(func(es []models.TimeEntry) []models.TimeEntry {
			out, err := timesheet.Mark(es, userID, date, status)
			if err != nil {
				markErr = err
				return es
			}
			return out
		})
		if markErr != nil {
			return markErr
		}
		if err != nil {
			output.Warning("saved in memory only: %v", err)
		}
		output.Success("Marked %s on %s", a.userName(userID), date)
		return nil
	},
}

var timesheetAdvanceCmd = &cobra.Command{
	Use:   "advance USER AMOUNT",
	Short: "Record a payroll advance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("invalid amount %q", args[1])
		}
		date, _ := cmd.Flags().GetString("date")
		if date == "" {
			date = time.Now().UTC().Format(time.DateOnly)
		}
		comment, _ := cmd.Flags().GetString("comment")

		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()
		if _, ok := a.state.User(args[0]); !ok {
			return fmt.Errorf("unknown user %q", args[0])
		}

		var advErr error
		err = a.state.UpdateAdvances(func(as []models.Advance) []models.Advance {
			out, _, err := timesheet.AddAdvance(as, args[0], amount, date, comment)
			if err != nil {
				advErr = err
				return as
			}
			return out
		})
		if advErr != nil {
			return advErr
		}
		if err != nil {
			output.Warning("saved in memory only: %v", err)
		}
		output.Success("Advance of %s recorded for %s", output.FormatMoney(amount, ""), a.userName(args[0]))
		return nil
	},
}

var timesheetListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Show a month of attendance",
	RunE: func(cmd *cobra.Command, args []string) error {
		monthStr, _ := cmd.Flags().GetString("month")
		month := time.Now().UTC()
		if monthStr != "" {
			var err error
			if month, err = time.Parse("2006-01", monthStr); err != nil {
				return fmt.Errorf("month must be YYYY-MM: %w", err)
			}
		}

		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		userID, _ := cmd.Flags().GetString("user")
		if userID == "" {
			userID = a.user.ID
		}
		prefix := month.Format("2006-01") + "-"

		var entries []models.TimeEntry
		for _, e := range a.state.Timesheet() {
			if e.UserID == userID && strings.HasPrefix(e.Date, prefix) {
				entries = append(entries, e)
			}
		}
		var advances []models.Advance
		for _, adv := range a.state.Advances() {
			if adv.UserID == userID && strings.HasPrefix(adv.Date, prefix) {
				advances = append(advances, adv)
			}
		}

		if jsonOutput(cmd) {
			return output.JSON(map[string]any{
				"user":     userID,
				"month":    month.Format("2006-01"),
				"hours":    timesheet.MonthHours(entries, userID, month),
				"entries":  entries,
				"advances": advances,
			})
		}

		fmt.Printf("%s, %s\n", a.userName(userID), month.Format("January 2006"))
		for _, e := range entries {
			span := ""
			if e.CheckIn != "" {
				span = e.CheckIn + "-" + e.CheckOut
			}
			fmt.Printf("  %s  %-8s %-11s %dh\n", e.Date, e.Status, span, e.TotalHours)
		}
		fmt.Printf("Total: %dh\n", timesheet.MonthHours(entries, userID, month))
		if len(advances) > 0 {
			fmt.Print(output.SectionHeader("advances"))
			for _, adv := range advances {
				fmt.Printf("  %s  %s  %s\n", adv.Date, output.FormatMoney(adv.Amount, ""), adv.Comment)
			}
		}
		return nil
	},
}

func init() {
	timesheetCheckinCmd.Flags().Float64("lat", 0, "Check-in latitude")
	timesheetCheckinCmd.Flags().Float64("lng", 0, "Check-in longitude")
	timesheetAdvanceCmd.Flags().String("date", "", "Date (YYYY-MM-DD, default today)")
	timesheetAdvanceCmd.Flags().String("comment", "", "Comment")
	timesheetListCmd.Flags().String("user", "", "User id (default: the acting user)")
	timesheetListCmd.Flags().String("month", "", "Month (YYYY-MM, default current)")

	timesheetCmd.AddCommand(timesheetCheckinCmd, timesheetCheckoutCmd, timesheetMarkCmd,
		timesheetAdvanceCmd, timesheetListCmd)
	rootCmd.AddCommand(timesheetCmd)
}
