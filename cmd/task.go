package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/desk/internal/finance"
	"github.com/marcus/desk/internal/models"
	"github.com/marcus/desk/internal/output"
	"github.com/marcus/desk/internal/public"
	"github.com/marcus/desk/internal/workflow"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	Aliases: []string{"tasks"},
	Short:   "Manage work orders",
	GroupID: "records",
}

func actorFor(u models.User) workflow.Actor {
	return workflow.Actor{ID: u.ID, Name: u.Name}
}

// parseStatus accepts any casing and "in_progress"/"inprogress" spellings.
func parseStatus(s string) (models.TaskStatus, error) {
	norm := strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.ToLower(s))
	for _, st := range []models.TaskStatus{models.TaskStatusNew, models.TaskStatusInProgress, models.TaskStatusCompleted, models.TaskStatusCanceled} {
		if strings.ReplaceAll(strings.ToLower(string(st)), "-", "") == norm {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q (want New, In-Progress, Completed or Canceled)", s)
}

func parsePriority(s string) (models.Priority, error) {
	if s == "" {
		return "", nil
	}
	for _, p := range []models.Priority{models.PriorityHigh, models.PriorityMedium, models.PriorityLow} {
		if strings.EqualFold(string(p), s) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown priority %q (want High, Medium or Low)", s)
}

func findTask(tasks []models.Task, id string) (models.Task, bool) {
	for _, t := range tasks {
		if strings.EqualFold(t.ID, id) {
			return t, true
		}
	}
	return models.Task{}, false
}

// mutateTask applies fn to a copy of task id and stores the result. fn
// errors leave local state untouched.
func (a *app) mutateTask(id string, fn func(*models.Task) error) (models.Task, error) {
	t, ok := findTask(a.state.Tasks(), id)
	if !ok {
		return models.Task{}, fmt.Errorf("task %s not found", id)
	}
	if err := fn(&t); err != nil {
		return t, err
	}
	err := a.state.UpdateTasks(func(ts []models.Task) []models.Task {
		for i := range ts {
			if ts[i].ID == t.ID {
				ts[i] = t
			}
		}
		return ts
	})
	if err != nil {
		output.Warning("saved in memory only: %v", err)
	}
	return t, nil
}

var taskCreateCmd = &cobra.Command{
	Use:   "create TITLE",
	Short: "Create a work order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := strings.TrimSpace(args[0])
		if title == "" {
			return errors.New("title is required")
		}
		prioStr, _ := cmd.Flags().GetString("priority")
		priority, err := parsePriority(prioStr)
		if err != nil {
			return err
		}
		deadline, _ := cmd.Flags().GetString("deadline")
		if deadline != "" {
			if _, err := time.Parse(time.DateOnly, deadline); err != nil {
				return fmt.Errorf("deadline must be YYYY-MM-DD: %w", err)
			}
		}

		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()
		a.pullBeforeMutation(cmd.Context())

		now := time.Now()
		t := models.Task{
			Title:    title,
			Status:   models.TaskStatusNew,
			Priority: priority,
			Deadline: deadline,
			History:  []models.HistoryEntry{},
		}
		t.Address, _ = cmd.Flags().GetString("address")
		t.Description, _ = cmd.Flags().GetString("description")
		if t.PublicToken, err = models.NewPublicToken(); err != nil {
			return err
		}

		if ref, _ := cmd.Flags().GetString("client"); ref != "" {
			c, err := finance.ResolveClient(a.state.Clients(), ref)
			if err != nil {
				return err
			}
			t.ClientID, t.ClientName = c.ID, c.Name
		}
		workflow.Created(&t, actorFor(a.user), now)
		if eng, _ := cmd.Flags().GetString("engineer"); eng != "" {
			u, ok := a.state.User(eng)
			if !ok {
				return fmt.Errorf("unknown user %q", eng)
			}
			workflow.Assign(&t, u, actorFor(a.user), now)
		}

		err = a.state.UpdateTasks(func(ts []models.Task) []models.Task {
			t.ID = models.NextTaskID(ts)
			return append([]models.Task{t}, ts...)
		})
		if err != nil {
			output.Warning("saved in memory only: %v", err)
		}
		a.flushAfterMutation(cmd.Context())

		if jsonOutput(cmd) {
			return output.JSON(t)
		}
		output.Success("Created %s", output.FormatTaskShort(&t))
		if base := public.LoadConfig().BaseURL; base != "" {
			fmt.Println("Status link: " + public.StatusLink(base, t))
		}
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List work orders",
	RunE: func(cmd *cobra.Command, args []string) error {
		var want models.TaskStatus
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			var err error
			if want, err = parseStatus(s); err != nil {
				return err
			}
		}
		mine, _ := cmd.Flags().GetBool("mine")

		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		var tasks []models.Task
		for _, t := range a.state.Tasks() {
			if want != "" && t.Status != want {
				continue
			}
			if mine && t.EngineerID != a.user.ID {
				continue
			}
			tasks = append(tasks, t)
		}

		if jsonOutput(cmd) {
			if tasks == nil {
				tasks = []models.Task{}
			}
			return output.JSON(tasks)
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks")
			return nil
		}
		for _, t := range tasks {
			line := output.FormatTaskShort(&t)
			if t.EngineerID != "" {
				line += "  @" + a.userName(t.EngineerID)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a work order with its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		t, ok := findTask(a.state.Tasks(), args[0])
		if !ok {
			return fmt.Errorf("task %s not found", args[0])
		}
		if jsonOutput(cmd) {
			return output.JSON(t)
		}

		engineer := ""
		if t.EngineerID != "" {
			engineer = a.userName(t.EngineerID)
		}
		desc := t.Description
		plain := t
		if output.IsTerminal() {
			plain.Description = ""
		}
		fmt.Print(output.FormatTaskLong(&plain, engineer))
		if plain.Description == "" && desc != "" {
			rendered, err := output.RenderMarkdown(desc, a.state.Theme())
			if err != nil {
				rendered = desc
			}
			fmt.Print(output.SectionHeader("description"))
			fmt.Println(rendered)
		}
		if base := public.LoadConfig().BaseURL; base != "" && t.PublicToken != "" {
			fmt.Println("\nStatus link: " + public.StatusLink(base, t))
		}
		return nil
	},
}

var taskStatusCmd = &cobra.Command{
	Use:   "status ID STATUS",
	Short: "Move a work order to a new status",
	Long: `Allowed moves:
  New          → In-Progress, Canceled
  In-Progress  → Completed, Canceled, New
Completed and Canceled are final.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		to, err := parseStatus(args[1])
		if err != nil {
			return err
		}
		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()
		a.pullBeforeMutation(cmd.Context())

		t, err := a.mutateTask(args[0], func(t *models.Task) error {
			return workflow.Transition(t, to, actorFor(a.user), time.Now())
		})
		if err != nil {
			return err
		}
		a.flushAfterMutation(cmd.Context())
		output.Success("%s is now %s", t.ID, output.StatusBadge(t.Status))
		return nil
	},
}

var taskAssignCmd = &cobra.Command{
	Use:   "assign ID USER",
	Short: "Assign a work order to an engineer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()
		a.pullBeforeMutation(cmd.Context())

		eng, ok := a.state.User(args[1])
		if !ok {
			return fmt.Errorf("unknown user %q", args[1])
		}
		t, err := a.mutateTask(args[0], func(t *models.Task) error {
			workflow.Assign(t, eng, actorFor(a.user), time.Now())
			return nil
		})
		if err != nil {
			return err
		}
		a.flushAfterMutation(cmd.Context())
		output.Success("%s assigned to %s", t.ID, eng.Name)
		return nil
	},
}

var taskCommentCmd = &cobra.Command{
	Use:   "comment ID TEXT",
	Short: "Add a note to a work order's history",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.TrimSpace(args[1])
		if text == "" {
			return errors.New("comment is empty")
		}
		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()
		a.pullBeforeMutation(cmd.Context())

		t, err := a.mutateTask(args[0], func(t *models.Task) error {
			workflow.Comment(t, text, actorFor(a.user), time.Now())
			return nil
		})
		if err != nil {
			return err
		}
		a.flushAfterMutation(cmd.Context())
		output.Success("Noted on %s", t.ID)
		return nil
	},
}

var taskConfirmCmd = &cobra.Command{
	Use:   "confirm ID",
	Short: "Record the client's confirmation of a completed work order",
	Long: `Records the client's sign-off the same way the public confirmation
endpoint does. --token defaults to the task's own token, for confirmations
taken over the phone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()
		a.pullBeforeMutation(cmd.Context())

		existing, ok := findTask(a.state.Tasks(), args[0])
		if !ok {
			return fmt.Errorf("task %s not found", args[0])
		}
		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			token = existing.PublicToken
		}
		rating, _ := cmd.Flags().GetInt("rating")

		t, err := public.Confirm(a.state, existing.ID, token, rating, time.Now())
		switch {
		case errors.Is(err, public.ErrNotFound):
			return fmt.Errorf("task %s not found or token mismatch", args[0])
		case err != nil && t.ID == "":
			return err
		case err != nil:
			output.Warning("%v", err)
		}
		a.flushAfterMutation(cmd.Context())
		output.Success("%s confirmed (rating %d/5)", t.ID, t.ClientConfirmation.Rating)
		return nil
	},
}

var taskRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Submit a service request as the web form would",
	RunE: func(cmd *cobra.Command, args []string) error {
		var req public.Request
		req.Name, _ = cmd.Flags().GetString("name")
		req.Phone, _ = cmd.Flags().GetString("phone")
		req.Comment, _ = cmd.Flags().GetString("comment")
		kind, _ := cmd.Flags().GetString("type")
		req.Kind = public.Kind(strings.ToUpper(kind))
		req.Attachments, _ = cmd.Flags().GetStringSlice("attach")
		if err := req.Validate(); err != nil {
			return err
		}

		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()
		a.pullBeforeMutation(cmd.Context())

		t, err := public.SubmitRequest(a.state, req, time.Now())
		if err != nil {
			if t.ID == "" {
				return err
			}
			output.Warning("%v", err)
		}
		a.flushAfterMutation(cmd.Context())

		if jsonOutput(cmd) {
			return output.JSON(t)
		}
		output.Success("Submitted %s", output.FormatTaskShort(&t))
		if base := public.LoadConfig().BaseURL; base != "" {
			fmt.Println("Status link: " + public.StatusLink(base, t))
		}
		return nil
	},
}

func init() {
	taskCreateCmd.Flags().String("client", "", "Client id or tax id")
	taskCreateCmd.Flags().String("address", "", "Site address")
	taskCreateCmd.Flags().String("priority", "", "High, Medium or Low")
	taskCreateCmd.Flags().String("deadline", "", "Deadline (YYYY-MM-DD)")
	taskCreateCmd.Flags().String("engineer", "", "Assign to this user id")
	taskCreateCmd.Flags().StringP("description", "d", "", "Description (markdown)")

	taskListCmd.Flags().String("status", "", "Only tasks with this status")
	taskListCmd.Flags().Bool("mine", false, "Only tasks assigned to the acting user")

	taskConfirmCmd.Flags().String("token", "", "Public token (default: the task's token)")
	taskConfirmCmd.Flags().Int("rating", workflow.DefaultRating, "Rating 1-5")

	taskRequestCmd.Flags().String("name", "", "Requester name")
	taskRequestCmd.Flags().String("phone", "", "Requester phone")
	taskRequestCmd.Flags().String("comment", "", "Request details")
	taskRequestCmd.Flags().String("type", string(public.KindEngineer), "MANAGER or ENGINEER")
	taskRequestCmd.Flags().StringSlice("attach", nil, "Attachment URLs")

	taskCmd.AddCommand(taskCreateCmd, taskListCmd, taskShowCmd, taskStatusCmd,
		taskAssignCmd, taskCommentCmd, taskConfirmCmd, taskRequestCmd)
	rootCmd.AddCommand(taskCmd)
}
