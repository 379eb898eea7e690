package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/flowstate/internal/domain"
)

var (
	taskDescription string
	taskDependsOn   []string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks within a plan",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <plan-id> <title>",
	Short: "Append a task to a plan",
	Long: `Append a task to the end of a plan's task order and print it as JSON.

New tasks start in PENDING. Dependencies must name existing tasks; a task
cannot leave PENDING (except to CANCELLED) until all of them are DONE.

Examples:
  flowstate task add plan-5e6f7a8b "write failing test"
  flowstate task add plan-5e6f7a8b "wire handler" --depends-on task-9c0d1e2f
  flowstate task add plan-5e6f7a8b "ship it" --depends-on task-9c0d1e2f --depends-on task-3a4b5c6d`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, closer, err := openRegistry()
		if err != nil {
			return err
		}
		defer closer()

		deps := make([]domain.TaskID, 0, len(taskDependsOn))
		for _, d := range taskDependsOn {
			deps = append(deps, domain.TaskID(d))
		}
		task, err := reg.AddTask(domain.PlanID(args[0]), args[1], taskDescription, deps)
		if err != nil {
			return err
		}
		return printJSON(task)
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list <plan-id>",
	Short: "List a plan's tasks in order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, closer, err := openRegistry()
		if err != nil {
			return err
		}
		defer closer()

		tasks, err := reg.ListTasks(domain.PlanID(args[0]))
		if err != nil {
			return err
		}
		return printJSON(tasks)
	},
}

var taskStatusCmd = &cobra.Command{
	Use:   "status <task-id> <status>",
	Short: "Move a task through the state machine",
	Long: fmt.Sprintf(`Set a task's status. Valid statuses: %s.

Only transitions allowed by the state machine succeed; DONE and CANCELLED
are terminal.`, statusNames()),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := domain.ParseStatus(args[1])
		if err != nil {
			return err
		}

		reg, closer, err := openRegistry()
		if err != nil {
			return err
		}
		defer closer()

		task, err := reg.SetTaskStatus(domain.TaskID(args[0]), status)
		if err != nil {
			return err
		}
		return printJSON(task)
	},
}

var taskSelectCmd = &cobra.Command{
	Use:   "select <task-id>",
	Short: "Mark a task as the current one (process-local, not persisted)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, closer, err := openRegistry()
		if err != nil {
			return err
		}
		defer closer()

		if err := reg.SelectTask(domain.TaskID(args[0])); err != nil {
			return err
		}
		fmt.Printf("selected %s\n", args[0])
		return nil
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task and strip it from other tasks' dependencies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, closer, err := openRegistry()
		if err != nil {
			return err
		}
		defer closer()

		if err := reg.DeleteTask(domain.TaskID(args[0])); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

func statusNames() string {
	all := domain.AllStatuses()
	names := make([]string, len(all))
	for i, s := range all {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

func init() {
	taskAddCmd.Flags().StringVarP(&taskDescription, "description", "d", "", "task description")
	taskAddCmd.Flags().StringArrayVar(&taskDependsOn, "depends-on", nil, "task ID this task depends on (repeatable)")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskStatusCmd, taskSelectCmd, taskDeleteCmd)
	rootCmd.AddCommand(taskCmd)
}
