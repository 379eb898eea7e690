package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/flowstate/internal/domain"
)

var flowCmd = &cobra.Command{
	Use:   "flow",
	Short: "Manage flows",
}

var flowCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new flow",
	Long: `Create a new flow and print it as JSON.

Examples:
  flowstate flow create "refactor auth"
  flowstate flow create "release prep" --select`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, closer, err := openRegistry()
		if err != nil {
			return err
		}
		defer closer()

		flow, err := reg.CreateFlow(args[0])
		if err != nil {
			return err
		}
		if sel, _ := cmd.Flags().GetBool("select"); sel {
			if err := reg.SelectFlow(flow.ID); err != nil {
				return err
			}
		}
		return printJSON(flow)
	},
}

var flowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all flows as JSON, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, closer, err := openRegistry()
		if err != nil {
			return err
		}
		defer closer()

		return printJSON(reg.ListFlows())
	},
}

var flowSelectCmd = &cobra.Command{
	Use:   "select <flow-id>",
	Short: "Mark a flow as the current one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, closer, err := openRegistry()
		if err != nil {
			return err
		}
		defer closer()

		if err := reg.SelectFlow(domain.FlowID(args[0])); err != nil {
			return err
		}
		fmt.Printf("selected %s\n", args[0])
		return nil
	},
}

var flowRenameCmd = &cobra.Command{
	Use:   "rename <flow-id> <name>",
	Short: "Rename a flow",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, closer, err := openRegistry()
		if err != nil {
			return err
		}
		defer closer()

		flow, err := reg.UpdateFlowName(domain.FlowID(args[0]), args[1])
		if err != nil {
			return err
		}
		return printJSON(flow)
	},
}

var flowDeleteCmd = &cobra.Command{
	Use:   "delete <flow-id>",
	Short: "Delete a flow and everything inside it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, closer, err := openRegistry()
		if err != nil {
			return err
		}
		defer closer()

		if err := reg.DeleteFlow(domain.FlowID(args[0])); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

func init() {
	flowCreateCmd.Flags().Bool("select", false, "select the new flow as current")

	flowCmd.AddCommand(flowCreateCmd, flowListCmd, flowSelectCmd, flowRenameCmd, flowDeleteCmd)
	rootCmd.AddCommand(flowCmd)
}
