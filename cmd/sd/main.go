package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sprintdesk/internal/app"
	"sprintdesk/internal/config"
	"sprintdesk/internal/countdown"
	"sprintdesk/internal/db"
	"sprintdesk/internal/domain"
	"sprintdesk/internal/engine"
	"sprintdesk/internal/migrate"
	"sprintdesk/internal/order"
	"sprintdesk/internal/repo"
	"sprintdesk/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sd",
	Short: "Sprintdesk CLI",
	Long: `Sprintdesk turns loose ideas into ordered, focused work.
Core concepts:
- Workspace: your .sprintdesk directory holding the database; config lives in sprintdesk.yml and is mirrored into the DB.
- Ideas: buckets of related work; each idea owns an ordered list of tasks.
- Tasks: the work items. Incomplete siblings keep dense 1..N ranks; completed ones sink below, newest first.
- Subtasks: one nesting level under a task, with their own ordering.
- Focus: exactly one task can be "now" across the whole workspace; any number can be flagged "today".
- Today: the cross-idea view of everything flagged today plus the "now" holder.
- Milestones: deadlines with live countdowns and urgency bands; deleting one unlinks work, never deletes it.
- Renaming a task to "xxx" deletes it. A blank rename keeps the old name.
- Event log: diary of changes, view with 'sd log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SPRINTDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(ideaCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(focusCmd())
	rootCmd.AddCommand(todayCmd())
	rootCmd.AddCommand(milestoneCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func actorID() string {
	return viper.GetString("actor-id")
}

// --- ideas ---

func ideaCmd() *cobra.Command {
	idea := &cobra.Command{
		Use:   "idea",
		Short: "Manage ideas",
		Long:  "Ideas are buckets of related work. Each idea owns an ordered task list; deleting an idea unlinks its tasks instead of deleting them.",
	}
	idea.AddCommand(ideaCreateCmd())
	idea.AddCommand(ideaListCmd())
	idea.AddCommand(ideaShowCmd())
	idea.AddCommand(ideaUpdateCmd())
	idea.AddCommand(ideaDeleteCmd())
	idea.AddCommand(ideaTasksCmd())
	return idea
}

func ideaCreateCmd() *cobra.Command {
	var opts engine.IdeaCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an idea",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = actorID()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				i, err := e.CreateIdea(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(i)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "idea id (optional)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Summary, "summary", "", "summary")
	cmd.Flags().StringVar(&opts.MilestoneID, "milestone", "", "milestone id")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "external project id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func ideaListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ideas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListIdeas(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Milestone", "Summary"})
				for _, i := range items {
					tw.AppendRow(table.Row{i.ID, i.Title, strOrDash(i.MilestoneID), i.Summary})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func ideaShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an idea",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				i, err := r.GetIdea(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(i)
			})
		},
	}
	return cmd
}

func ideaUpdateCmd() *cobra.Command {
	var title, summary, milestone string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update an idea",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.IdeaUpdateOptions{ID: args[0], ActorID: actorID()}
			if cmd.Flags().Changed("title") {
				opts.Title = &title
			}
			if cmd.Flags().Changed("summary") {
				opts.Summary = &summary
			}
			if cmd.Flags().Changed("milestone") {
				opts.MilestoneSet = true
				if milestone != "" {
					opts.MilestoneID = &milestone
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				i, err := e.UpdateIdea(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(i)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&summary, "summary", "", "summary")
	cmd.Flags().StringVar(&milestone, "milestone", "", "milestone id (empty to unlink)")
	return cmd
}

func ideaDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an idea (its tasks are unlinked, not deleted)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteIdea(ctx, args[0], actorID())
			})
		},
	}
	return cmd
}

func ideaTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks <id>",
		Short: "List an idea's tasks in display order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Repo.GetIdea(ctx, args[0]); err != nil {
					return err
				}
				items, err := e.SortedSiblings(ctx, engine.Scope{IdeaID: args[0]})
				if err != nil {
					return err
				}
				return printTaskList(items, false)
			})
		},
	}
	return cmd
}

// --- tasks ---

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks keep dense 1..N ranks among incomplete siblings. Completing a task closes its gap; renaming one to \"xxx\" deletes it.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDoneCmd())
	task.AddCommand(taskReopenCmd())
	task.AddCommand(taskMoveCmd())
	task.AddCommand(taskSubtasksCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var position string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = actorID()
			opts.Position = order.Position(position)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (optional)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "name")
	cmd.Flags().StringVar(&opts.IdeaID, "idea", "", "idea id")
	cmd.Flags().StringVar(&opts.ParentID, "parent", "", "parent task id (creates a subtask)")
	cmd.Flags().StringVar(&opts.MilestoneID, "milestone", "", "milestone id")
	cmd.Flags().StringVar(&opts.Note, "note", "", "note")
	cmd.Flags().StringVar(&position, "position", "bottom", "insert position (top or bottom)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tasks, err := r.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				field := order.ByOrder
				if f.ParentID != "" {
					field = order.BySubOrder
				}
				return printTaskList(order.SortSiblings(tasks, field), field == order.BySubOrder)
			})
		},
	}
	cmd.Flags().StringVar(&f.IdeaID, "idea", "", "idea filter")
	cmd.Flags().StringVar(&f.ParentID, "parent", "", "parent task filter")
	cmd.Flags().StringVar(&f.MilestoneID, "milestone", "", "milestone filter")
	cmd.Flags().BoolVar(&f.TopLevelOnly, "top-level", false, "top-level tasks only")
	cmd.Flags().StringVar(&f.Focus, "focus", "", "focus filter (now or today)")
	return cmd
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				t, err := r.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var name, note, milestone, idea string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a task",
		Long:  "Rename, annotate, or relink a task. Renaming to \"xxx\" deletes it; a blank rename keeps the previous name.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.TaskUpdateOptions{ID: args[0], ActorID: actorID()}
			if cmd.Flags().Changed("name") {
				opts.Rename = &name
			}
			if cmd.Flags().Changed("note") {
				opts.NoteSet = true
				if note != "" {
					opts.Note = &note
				}
			}
			if cmd.Flags().Changed("milestone") {
				opts.MilestoneSet = true
				if milestone != "" {
					opts.MilestoneID = &milestone
				}
			}
			if cmd.Flags().Changed("idea") {
				opts.IdeaSet = true
				if idea != "" {
					opts.IdeaID = &idea
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, deleted, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				if deleted {
					fmt.Printf("deleted %s (%s)\n", t.ID, t.Name)
					return nil
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name (\"xxx\" deletes the task)")
	cmd.Flags().StringVar(&note, "note", "", "note (empty to clear)")
	cmd.Flags().StringVar(&milestone, "milestone", "", "milestone id (empty to unlink)")
	cmd.Flags().StringVar(&idea, "idea", "", "idea id (empty to unlink)")
	return cmd
}

func taskDoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Complete a task",
		Long:  "Marks the task done. It loses the \"now\" spotlight if it held it, keeps its today flag, and its siblings close the rank gap.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CompleteTask(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskReopenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reopen <id>",
		Short: "Reopen a completed task",
		Long:  "Clears completion and slots the task at the bottom of its list. Focus flags are untouched; it does not regain the spotlight.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ReopenTask(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskMoveCmd() *cobra.Command {
	var idea, parent string
	var today bool
	var from, to int
	cmd := &cobra.Command{
		Use:   "move",
		Short: "Move a task within its list",
		Long:  "Positions address the incomplete part of the list, 0-based. Completed tasks never move.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				seq, err := e.MoveTask(ctx, engine.ReorderOptions{
					Scope:   engine.Scope{IdeaID: idea, ParentID: parent, Today: today},
					From:    from,
					To:      to,
					ActorID: actorID(),
				})
				if err != nil {
					return err
				}
				return printTaskList(seq, parent != "")
			})
		},
	}
	cmd.Flags().StringVar(&idea, "idea", "", "idea scope")
	cmd.Flags().StringVar(&parent, "parent", "", "subtask scope (parent task id)")
	cmd.Flags().BoolVar(&today, "today", false, "today scope")
	cmd.Flags().IntVar(&from, "from", 0, "current position")
	cmd.Flags().IntVar(&to, "to", 0, "target position")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func taskSubtasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subtasks <id>",
		Short: "List a task's subtasks in display order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Repo.GetTask(ctx, args[0]); err != nil {
					return err
				}
				items, err := e.SortedSiblings(ctx, engine.Scope{ParentID: args[0]})
				if err != nil {
					return err
				}
				return printTaskList(items, true)
			})
		},
	}
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task and its subtasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteTask(ctx, args[0], actorID())
			})
		},
	}
	return cmd
}

// --- focus ---

func focusCmd() *cobra.Command {
	focus := &cobra.Command{
		Use:   "focus",
		Short: "Manage the now/today focus flags",
		Long:  "Exactly one task can be \"now\" across the workspace; flagging another steals the spotlight. \"today\" is independent and unlimited.",
	}
	focus.AddCommand(focusNowCmd())
	focus.AddCommand(focusClearCmd())
	focus.AddCommand(focusTodayCmd())
	focus.AddCommand(focusDropCmd())
	return focus
}

func focusNowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "now <id>",
		Short: "Put a task in the \"now\" spotlight",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetFocusNow(ctx, args[0], true, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func focusClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear <id>",
		Short: "Take a task out of the \"now\" spotlight",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.SetFocusNow(ctx, args[0], false, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func focusTodayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "today <id>",
		Short: "Toggle a task's today flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ToggleFocusToday(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func focusDropCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drop <id>",
		Short: "Remove a task from today (keeps the \"now\" spotlight if held)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.RemoveFromToday(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

// --- today ---

func todayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "today",
		Short: "Show the Today list",
		Long:  "Everything flagged today plus the \"now\" holder, incomplete first in rank order, completed below newest first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.SortedSiblings(ctx, engine.Scope{Today: true})
				if err != nil {
					return err
				}
				return printTaskList(items, false)
			})
		},
	}
	return cmd
}

// --- milestones ---

func milestoneCmd() *cobra.Command {
	ms := &cobra.Command{
		Use:   "milestone",
		Short: "Manage milestones",
		Long:  "Milestones are deadlines with live countdowns. Deleting one unlinks tasks and ideas instead of deleting them.",
	}
	ms.AddCommand(milestoneCreateCmd())
	ms.AddCommand(milestoneListCmd())
	ms.AddCommand(milestoneShowCmd())
	ms.AddCommand(milestoneUpdateCmd())
	ms.AddCommand(milestoneDeleteCmd())
	return ms
}

func milestoneCreateCmd() *cobra.Command {
	var opts engine.MilestoneCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a milestone",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = actorID()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.CreateMilestone(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "milestone id (optional)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "name")
	cmd.Flags().StringVar(&opts.TargetAt, "target", "", "deadline (RFC3339)")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func milestoneListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List milestones with countdowns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListMilestones(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				th := e.Config.Thresholds()
				now := e.Now()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Target", "Remaining", "Urgency", "Progress"})
				for _, m := range items {
					remaining, urgency := "-", "-"
					if m.TargetAt != nil && !m.Completed {
						if target, err := time.Parse(time.RFC3339, *m.TargetAt); err == nil {
							r := countdown.Until(target, now)
							remaining = r.String()
							urgency = string(countdown.Classify(r, th))
						}
					}
					progress := fmt.Sprintf("%d/%d", m.CompletedCount, m.TaskCount)
					tw.AppendRow(table.Row{m.ID, m.Name, strOrDash(m.TargetAt), remaining, urgency, progress})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func milestoneShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a milestone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				m, err := r.GetMilestone(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	return cmd
}

func milestoneUpdateCmd() *cobra.Command {
	var name, target, notes string
	var completed bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a milestone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.MilestoneUpdateOptions{ID: args[0], ActorID: actorID()}
			if cmd.Flags().Changed("name") {
				opts.Name = &name
			}
			if cmd.Flags().Changed("target") {
				opts.TargetSet = true
				if target != "" {
					opts.TargetAt = &target
				}
			}
			if cmd.Flags().Changed("notes") {
				opts.NotesSet = true
				if notes != "" {
					opts.Notes = &notes
				}
			}
			if cmd.Flags().Changed("completed") {
				opts.Completed = &completed
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				m, err := e.UpdateMilestone(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&target, "target", "", "deadline (RFC3339, empty to clear)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes (empty to clear)")
	cmd.Flags().BoolVar(&completed, "completed", false, "completed")
	return cmd
}

func milestoneDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a milestone (tasks and ideas are unlinked)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteMilestone(ctx, args[0], actorID())
			})
		},
	}
	return cmd
}

// --- status ---

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show workspace status",
		Long:  "The scoreboard: open/done counts, the \"now\" holder, today size, and the countdown to the daily deadline.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{})
				if err != nil {
					return err
				}
				var open, done, today int
				var nowHolder *domain.Task
				for i, t := range tasks {
					if t.Completed {
						done++
					} else {
						open++
					}
					if t.InToday() {
						today++
					}
					if t.IsFocusNow {
						nowHolder = &tasks[i]
					}
				}
				out := map[string]any{
					"studio":      e.Config.Studio.Name,
					"open_tasks":  open,
					"done_tasks":  done,
					"today_tasks": today,
					"focus_now":   nowHolder,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Studio: %s\n", e.Config.Studio.Name)
				fmt.Printf("Tasks: %d open, %d done, %d in today\n", open, done, today)
				if nowHolder != nil {
					fmt.Printf("Now: %s (%s)\n", nowHolder.Name, nowHolder.ID)
				} else {
					fmt.Println("Now: nothing in the spotlight")
				}
				if e.Config.DailyDeadline != "" {
					now := e.Now()
					if deadline, err := countdown.NextDailyDeadline(e.Config.DailyDeadline, now); err == nil {
						r := countdown.Until(deadline, now)
						fmt.Printf("Daily deadline %s: %s left (%s)\n",
							e.Config.DailyDeadline, r.String(), countdown.Classify(r, e.Config.Thresholds()))
					}
				}
				return nil
			})
		},
	}
	return cmd
}

// --- config ---

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage workspace configuration",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configExportCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default sprintdesk.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a config file into the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			cfg, err := config.FromFile(file)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.UpsertWorkspaceConfig(ctx, cfg)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "config file path")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the stored configuration as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				cfg, err := r.GetWorkspaceConfig(ctx)
				if err != nil {
					if errors.Is(err, repo.ErrNotFound) {
						cfg = config.Default()
					} else {
						return err
					}
				}
				return printJSON(cfg)
			})
		},
	}
	return cmd
}

// --- log ---

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: creations, renames, focus changes, reorders, deletions.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			cfg, err := app.ResolveConfig(cmd.Context(), workspace, r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("SPRINTDESK_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("SPRINTDESK_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Sprintdesk API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	cfg, err := app.ResolveConfig(ctx, workspace, r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTaskList(tasks []domain.Task, sub bool) error {
	if viper.GetBool("json") {
		return printJSON(tasks)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "ID", "Name", "Focus", "Done"})
	for _, t := range tasks {
		rank := t.SortOrder
		if sub {
			rank = t.SubOrder
		}
		rankCell := fmt.Sprintf("%d", rank)
		done := ""
		if t.Completed {
			rankCell = "-"
			done = "x"
			if t.CompletedAt != nil {
				done = *t.CompletedAt
			}
		}
		tw.AppendRow(table.Row{rankCell, t.ID, t.Name, t.Focus().String(), done})
	}
	tw.Render()
	return nil
}

func strOrDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
