package cmd

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/taskdeck/internal/session"
	"github.com/taskdeck/internal/tasks"
)

// TasksCommand returns the tasks command
func TasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "List and change tasks",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List tasks",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Only tasks with this status"},
					&cli.StringFlag{Name: "priority", Usage: "Only tasks with this priority"},
					&cli.StringFlag{Name: "assignee", Aliases: []string{"a"}, Usage: "Only tasks assigned to this user"},
					&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Only tasks with any of these tags"},
					&cli.BoolFlag{Name: "overdue", Usage: "Only overdue tasks"},
					&cli.StringFlag{Name: "search", Usage: "Search titles and descriptions"},
					&cli.Int64Flag{Name: "parent", Usage: "Only subtasks of this task"},
				},
				Action: runTasksList,
			},
			{
				Name:      "show",
				Usage:     "Show a task with its subtasks and history",
				ArgsUsage: "ID",
				Action:    runTasksShow,
			},
			{
				Name:      "history",
				Usage:     "Show status changes, for one task when ID is given",
				ArgsUsage: "[ID]",
				Action:    runTasksHistory,
			},
			{
				Name:      "create",
				Usage:     "Create a task",
				Flags:     append(taskFieldFlags(), &cli.Int64Flag{Name: "parent", Usage: "Parent task ID"}),
				Action:    runTasksCreate,
				ArgsUsage: " ",
			},
			{
				Name:      "set",
				Usage:     "Change fields of a task, reverting if the server rejects the change",
				ArgsUsage: "ID",
				Flags:     taskFieldFlags(),
				Action:    runTasksSet,
			},
			{
				Name:      "bulk-status",
				Usage:     "Move several tasks to one status",
				ArgsUsage: "ID...",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "New status", Required: true},
				},
				Action: runTasksBulkStatus,
			},
			{
				Name:      "delete",
				Usage:     "Delete a task",
				ArgsUsage: "ID",
				Action:    runTasksDelete,
			},
			{
				Name:   "analytics",
				Usage:  "Show task statistics",
				Action: runTasksAnalytics,
			},
		},
	}
}

func taskFieldFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "title", Usage: "Title"},
		&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Description"},
		&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "pending, in_progress, blocked or completed"},
		&cli.StringFlag{Name: "priority", Usage: "low, medium, high or critical"},
		&cli.StringFlag{Name: "assignee", Aliases: []string{"a"}, Usage: "Username of the assignee"},
		&cli.StringFlag{Name: "estimated-hours", Usage: "Estimated effort in hours"},
		&cli.StringFlag{Name: "actual-hours", Usage: "Effort spent in hours"},
		&cli.StringFlag{Name: "deadline", Usage: "Deadline as RFC 3339 or YYYY-MM-DD"},
		&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Tag names, replacing the current tags"},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task ID %q", s)
	}
	return id, nil
}

func parseStatus(s string) (tasks.Status, error) {
	st := tasks.Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("invalid status %q", s)
	}
	return st, nil
}

func parsePriority(s string) (tasks.Priority, error) {
	p := tasks.Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("invalid priority %q", s)
	}
	return p, nil
}

func parseDeadline(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid deadline %q, want RFC 3339 or YYYY-MM-DD", s)
	}
	// End of that day.
	return t.Add(24*time.Hour - time.Minute), nil
}

// changesFromFlags collects the fields set on the command line.
func changesFromFlags(c *cli.Context) (tasks.Changes, error) {
	var ch tasks.Changes
	if c.IsSet("title") {
		v := c.String("title")
		ch.Title = &v
	}
	if c.IsSet("description") {
		v := c.String("description")
		ch.Description = &v
	}
	if c.IsSet("status") {
		st, err := parseStatus(c.String("status"))
		if err != nil {
			return ch, err
		}
		ch.Status = &st
	}
	if c.IsSet("priority") {
		p, err := parsePriority(c.String("priority"))
		if err != nil {
			return ch, err
		}
		ch.Priority = &p
	}
	if c.IsSet("assignee") {
		ref := tasks.Named(c.String("assignee"))
		ch.AssignedTo = &ref
	}
	for flag, dst := range map[string]**string{"estimated-hours": &ch.EstimatedHours, "actual-hours": &ch.ActualHours} {
		if !c.IsSet(flag) {
			continue
		}
		h, err := tasks.ParseHours(c.String(flag))
		if err != nil {
			return ch, fmt.Errorf("--%s: %w", flag, err)
		}
		if h == nil {
			h = new(string)
		}
		*dst = h
	}
	if c.IsSet("deadline") {
		d, err := parseDeadline(c.String("deadline"))
		if err != nil {
			return ch, err
		}
		ch.Deadline = &d
	}
	if c.IsSet("tag") {
		tags := c.StringSlice("tag")
		ch.Tags = &tags
	}
	return ch, nil
}

func runTasksList(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	if _, err := rt.requireAction(c.Context, session.ActionRead); err != nil {
		return err
	}

	f := tasks.Filters{
		Status:     tasks.Status(c.String("status")),
		Priority:   tasks.Priority(c.String("priority")),
		Tags:       c.StringSlice("tag"),
		Search:     c.String("search"),
		ParentTask: c.Int64("parent"),
	}
	if c.IsSet("overdue") {
		overdue := c.Bool("overdue")
		f.Overdue = &overdue
	}
	if name := c.String("assignee"); name != "" {
		staff, err := rt.Session.Staff(c.Context)
		if err != nil {
			return fmt.Errorf("failed to load staff: %w", err)
		}
		id, ok := staff.ResolveUserID(name)
		if !ok {
			return fmt.Errorf("unknown assignee %q", name)
		}
		f.AssignedTo = id
	}

	list, err := rt.Tasks.Service().List(c.Context, f)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}
	if len(list) == 0 {
		rt.printf("No tasks found\n")
		return nil
	}
	rt.printf("%s\n", taskTable(list))
	return nil
}

func runTasksShow(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: task ID")
	}
	id, err := parseID(c.Args().Get(0))
	if err != nil {
		return err
	}
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	if _, err := rt.requireAction(c.Context, session.ActionRead); err != nil {
		return err
	}

	var (
		task     *tasks.Task
		subtasks []tasks.Task
		history  []tasks.HistoryEntry
	)
	svc := rt.Tasks.Service()
	g, ctx := errgroup.WithContext(c.Context)
	g.Go(func() (err error) {
		task, err = svc.Get(ctx, id)
		return err
	})
	g.Go(func() (err error) {
		subtasks, err = svc.Subtasks(ctx, id)
		return err
	})
	g.Go(func() (err error) {
		history, err = svc.History(ctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to load task %d: %w", id, err)
	}

	rt.printf("%s\n", headingStyle.Render(fmt.Sprintf("#%d %s", task.ID, task.Title)))
	rt.print(field("Status", string(task.Status)))
	rt.print(field("Priority", string(task.Priority)))
	rt.print(field("Assignee", task.AssignedTo.String()))
	rt.print(field("Created by", task.CreatedBy))
	rt.print(field("Deadline", formatDeadline(task.Deadline)))
	if remaining, ok := task.RemainingHours(); ok {
		actual, _ := tasks.Hours(task.ActualHours)
		rt.print(field("Hours", fmt.Sprintf("%s of %s logged, %s left", actual.StringFixed(2), *task.EstimatedHours, remaining.StringFixed(2))))
	}
	if task.ParentTask != nil {
		rt.print(field("Parent", "#"+strconv.FormatInt(*task.ParentTask, 10)))
	}
	if len(task.Tags) > 0 {
		rt.print(field("Tags", strings.Join(task.TagNames(), ", ")))
	}
	if task.Description != "" {
		rt.printf("\n%s\n", task.Description)
	}

	if len(subtasks) > 0 {
		rt.printf("\n%s\n%s\n", headingStyle.Render("Subtasks"), taskTable(subtasks))
	}
	if len(history) > 0 {
		rt.printf("\n%s\n%s\n", headingStyle.Render("History"), historyTable(history))
	}
	return nil
}

func historyTable(entries []tasks.HistoryEntry) string {
	t := newTable("WHEN", "TASK", "BY", "FROM", "TO")
	for _, h := range entries {
		t.Row(
			h.Timestamp.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("#%d %s", h.Task, h.TaskTitle),
			h.ChangedByName,
			string(h.PreviousStatus),
			string(h.NewStatus),
		)
	}
	return t.String()
}

func runTasksHistory(c *cli.Context) error {
	var id int64
	if c.NArg() > 0 {
		var err error
		if id, err = parseID(c.Args().Get(0)); err != nil {
			return err
		}
	}
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	if _, err := rt.requireAction(c.Context, session.ActionRead); err != nil {
		return err
	}

	history, err := rt.Tasks.Service().History(c.Context, id)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	if len(history) == 0 {
		rt.printf("No status changes recorded\n")
		return nil
	}
	sort.SliceStable(history, func(i, j int) bool { return history[i].Timestamp.After(history[j].Timestamp) })
	rt.printf("%s\n", historyTable(history))
	return nil
}

func runTasksCreate(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	user, err := rt.requireAction(c.Context, session.ActionWrite)
	if err != nil {
		return err
	}

	ch, err := changesFromFlags(c)
	if err != nil {
		return err
	}
	if ch.Title == nil || *ch.Title == "" {
		return fmt.Errorf("--title is required")
	}
	assignee := tasks.Named(user.Username)
	if ch.AssignedTo != nil {
		assignee = *ch.AssignedTo
	}
	if !strings.EqualFold(assignee.Name, user.Username) && !rt.Session.CanPerformAction(session.ActionCreateTaskForOther) {
		return fmt.Errorf("only managers can create tasks for other users")
	}

	staff, err := rt.Session.Staff(c.Context)
	if err != nil {
		return fmt.Errorf("failed to load staff: %w", err)
	}
	assigneeID, err := tasks.ResolveAssignee(assignee, staff)
	if err != nil {
		return err
	}

	draft := tasks.Merge(tasks.Task{Status: tasks.StatusPending, Priority: tasks.PriorityMedium, AssignedTo: tasks.ByID(assigneeID)}, ch)
	if parent := c.Int64("parent"); parent != 0 {
		draft.ParentTask = &parent
	}
	w, err := tasks.ExpandWrite(draft, tasks.Changes{}, staff)
	if err != nil {
		return err
	}

	created, err := rt.Tasks.Create(c.Context, w)
	if err != nil {
		return err
	}
	rt.printf("Created task #%d\n", created.ID)
	return nil
}

func runTasksSet(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: task ID")
	}
	id, err := parseID(c.Args().Get(0))
	if err != nil {
		return err
	}
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	if _, err := rt.requireAction(c.Context, session.ActionWrite); err != nil {
		return err
	}

	ch, err := changesFromFlags(c)
	if err != nil {
		return err
	}
	if ch == (tasks.Changes{}) {
		return fmt.Errorf("nothing to change, pass at least one field flag")
	}

	current, staff, err := loadForUpdate(c.Context, rt)
	if err != nil {
		return err
	}
	for _, t := range current {
		if t.ID != id {
			continue
		}
		if access := rt.Session.CanUpdateNow(string(t.Priority), time.Now()); !access.Allowed {
			return fmt.Errorf("%s Next window opens %s", access.Message, access.NextAvailable.Format("Mon 15:04 MST"))
		}
	}

	if err := rt.Tasks.ApplyOptimistic(c.Context, id, ch, current, staff); err != nil {
		return err
	}
	if t, ok := rt.Tasks.Cache().Get(id); ok {
		rt.printf("%s\n", taskTable([]tasks.Task{t}))
	}
	return nil
}

// loadForUpdate fetches the task list and the staff directory together.
func loadForUpdate(ctx context.Context, rt *Runtime) ([]tasks.Task, session.Staff, error) {
	var staff session.Staff
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.Tasks.Refetch(gctx)
	})
	g.Go(func() (err error) {
		staff, err = rt.Session.Staff(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	return rt.Tasks.Cache().All(), staff, nil
}

func runTasksBulkStatus(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: at least one task ID")
	}
	ids := make([]int64, 0, c.NArg())
	for _, arg := range c.Args().Slice() {
		id, err := parseID(arg)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	status, err := parseStatus(c.String("status"))
	if err != nil {
		return err
	}

	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	if _, err := rt.requireAction(c.Context, session.ActionWrite); err != nil {
		return err
	}
	_, err = rt.Tasks.BulkUpdateStatus(c.Context, ids, status)
	return err
}

func runTasksDelete(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: task ID")
	}
	id, err := parseID(c.Args().Get(0))
	if err != nil {
		return err
	}
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	if _, err := rt.requireAction(c.Context, session.ActionWrite); err != nil {
		return err
	}
	return rt.Tasks.Delete(c.Context, id)
}

func runTasksAnalytics(c *cli.Context) error {
	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	if _, err := rt.requireAction(c.Context, session.ActionRead); err != nil {
		return err
	}

	a, err := rt.Tasks.Service().Analytics(c.Context)
	if err != nil {
		return fmt.Errorf("failed to load analytics: %w", err)
	}

	rt.printf("%s\n", headingStyle.Render("My tasks"))
	rt.print(field("Total", strconv.Itoa(a.MyTasks.Total)))
	for _, st := range []tasks.Status{tasks.StatusPending, tasks.StatusInProgress, tasks.StatusBlocked, tasks.StatusCompleted} {
		rt.print(field(string(st), strconv.Itoa(a.MyTasks.ByStatus[st])))
	}
	rt.print(field("Overdue", strconv.Itoa(a.MyTasks.OverdueCount)))
	rt.print(field("Avg. done", a.MyTasks.AvgCompletionTime))

	rt.printf("\n%s\n", headingStyle.Render("Team"))
	rt.print(field("Total", strconv.Itoa(a.TeamTasks.Total)))
	for _, p := range []tasks.Priority{tasks.PriorityLow, tasks.PriorityMedium, tasks.PriorityHigh, tasks.PriorityCritical} {
		rt.print(field(string(p), strconv.Itoa(a.TeamTasks.PriorityDistribution[p])))
	}
	for _, b := range a.TeamTasks.BlockedTasksNeedingAttention {
		rt.printf("%s\n", warnStyle.Render(fmt.Sprintf("blocked: #%d %s", b.ID, b.Title)))
	}
	rt.print(field("Efficiency", fmt.Sprintf("%.1f", a.EfficiencyScore)))
	return nil
}
