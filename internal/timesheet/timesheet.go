// Package timesheet records attendance: one entry per user per day,
// opened by check-in and closed by check-out, plus payroll advances.
package timesheet

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marcus/desk/internal/models"
)

const clockLayout = "15:04"

var (
	ErrNotCheckedIn  = errors.New("not checked in today")
	ErrInvalidAmount = errors.New("advance amount must be positive")
	ErrInvalidStatus = errors.New("unknown attendance status")
)

// standardHours is credited when a check-out has no matching check-in
// and for manually marked Present/Late days.
const standardHours = 8

// day is the entry key for t. Days are keyed by their UTC date while the
// check-in and check-out clocks stay in local time.
func day(t time.Time) string { return t.UTC().Format(time.DateOnly) }

func find(entries []models.TimeEntry, userID, date string) int {
	for i, e := range entries {
		if e.UserID == userID && e.Date == date {
			return i
		}
	}
	return -1
}

// CheckIn marks userID present today at now. An existing entry for the
// day is reopened (hours reset); otherwise one is created. The input
// slice is not modified.
func CheckIn(entries []models.TimeEntry, userID string, now time.Time, loc *models.GeoPoint) ([]models.TimeEntry, models.TimeEntry) {
	out := append([]models.TimeEntry(nil), entries...)
	date := day(now)
	if i := find(out, userID, date); i >= 0 {
		out[i].Status = models.AttendancePresent
		out[i].CheckIn = now.Format(clockLayout)
		out[i].CheckOut = ""
		out[i].TotalHours = 0
		out[i].Location = loc
		return out, out[i]
	}
	e := models.TimeEntry{
		ID:       models.NewID("te_"),
		UserID:   userID,
		Date:     date,
		Status:   models.AttendancePresent,
		CheckIn:  now.Format(clockLayout),
		Location: loc,
	}
	return append(out, e), e
}

// CheckOut closes today's entry for userID and sets its total hours,
// rounded to the nearest hour and never negative.
func CheckOut(entries []models.TimeEntry, userID string, now time.Time) ([]models.TimeEntry, models.TimeEntry, error) {
	i := find(entries, userID, day(now))
	if i < 0 {
		return nil, models.TimeEntry{}, ErrNotCheckedIn
	}
	out := append([]models.TimeEntry(nil), entries...)
	e := &out[i]
	e.CheckOut = now.Format(clockLayout)
	e.TotalHours = workedHours(e.CheckIn, e.CheckOut)
	return out, *e, nil
}

func workedHours(in, out string) int {
	start, err1 := time.Parse(clockLayout, in)
	end, err2 := time.Parse(clockLayout, out)
	if in == "" || err1 != nil || err2 != nil {
		return standardHours
	}
	h := end.Sub(start).Hours()
	return int(math.Round(max(0, h)))
}

// Mark sets a manager-chosen status for (userID, date). Present and Late
// credit a standard day; other statuses credit none. A nil status
// removes the entry.
func Mark(entries []models.TimeEntry, userID, date string, status *models.AttendanceStatus) ([]models.TimeEntry, error) {
	out := append([]models.TimeEntry(nil), entries...)
	i := find(out, userID, date)
	if status == nil {
		if i >= 0 {
			out = append(out[:i], out[i+1:]...)
		}
		return out, nil
	}

	hours := 0
	switch *status {
	case models.AttendancePresent, models.AttendanceLate:
		hours = standardHours
	case models.AttendanceSick, models.AttendanceLeave, models.AttendanceAbsent, models.AttendanceFired:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, *status)
	}

	if i >= 0 {
		out[i].Status = *status
		out[i].TotalHours = hours
		return out, nil
	}
	e := models.TimeEntry{ID: models.NewID("te_"), UserID: userID, Date: date, Status: *status, TotalHours: hours}
	if *status == models.AttendancePresent {
		e.CheckIn, e.CheckOut = "09:00", "18:00"
	}
	return append(out, e), nil
}

// AddAdvance records a payroll advance.
func AddAdvance(advances []models.Advance, userID string, amount decimal.Decimal, date, comment string) ([]models.Advance, models.Advance, error) {
	if !amount.IsPositive() {
		return nil, models.Advance{}, ErrInvalidAmount
	}
	a := models.Advance{
		ID:      models.NewID("adv_"),
		UserID:  userID,
		Amount:  amount,
		Date:    date,
		Comment: strings.TrimSpace(comment),
	}
	return append(append([]models.Advance(nil), advances...), a), a, nil
}

// MonthHours sums a user's hours over the month containing month.
func MonthHours(entries []models.TimeEntry, userID string, month time.Time) int {
	prefix := month.Format("2006-01") + "-"
	total := 0
	for _, e := range entries {
		if e.UserID == userID && strings.HasPrefix(e.Date, prefix) {
			total += e.TotalHours
		}
	}
	return total
}
