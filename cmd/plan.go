package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/flowstate/internal/domain"
)

var planDescription string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage plans within a flow",
}

var planCreateCmd = &cobra.Command{
	Use:   "create <flow-id> <name>",
	Short: "Append a plan to a flow",
	Long: `Append a plan to the end of a flow's plan order and print it as JSON.

Examples:
  flowstate plan create flow-1a2b3c4d "migrate sessions"
  flowstate plan create flow-1a2b3c4d "migrate sessions" -d "move session state to the new table"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, closer, err := openRegistry()
		if err != nil {
			return err
		}
		defer closer()

		plan, err := reg.CreatePlan(domain.FlowID(args[0]), args[1], planDescription)
		if err != nil {
			return err
		}
		return printJSON(plan)
	},
}

var planListCmd = &cobra.Command{
	Use:   "list <flow-id>",
	Short: "List a flow's plans in order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, closer, err := openRegistry()
		if err != nil {
			return err
		}
		defer closer()

		plans, err := reg.ListPlans(domain.FlowID(args[0]))
		if err != nil {
			return err
		}
		return printJSON(plans)
	},
}

var planCompleteCmd = &cobra.Command{
	Use:   "complete <plan-id>",
	Short: "Mark a plan completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, closer, err := openRegistry()
		if err != nil {
			return err
		}
		defer closer()

		plan, err := reg.CompletePlan(domain.PlanID(args[0]))
		if err != nil {
			return err
		}
		return printJSON(plan)
	},
}

var planDeleteCmd = &cobra.Command{
	Use:   "delete <plan-id>",
	Short: "Delete a plan and its tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, closer, err := openRegistry()
		if err != nil {
			return err
		}
		defer closer()

		if err := reg.DeletePlan(domain.PlanID(args[0])); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

func init() {
	planCreateCmd.Flags().StringVarP(&planDescription, "description", "d", "", "plan description")

	planCmd.AddCommand(planCreateCmd, planListCmd, planCompleteCmd, planDeleteCmd)
	rootCmd.AddCommand(planCmd)
}
