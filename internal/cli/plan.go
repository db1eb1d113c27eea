package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	planCmd := &cobra.Command{
		Use:   "plan [query]",
		Short: "Show the routing decision and memory plan for a query",
		Args:  cobra.MinimumNArgs(1),
		Run:   runPlan,
	}

	composeCmd := &cobra.Command{
		Use:   "compose [query]",
		Short: "Assemble the prompt for a query",
		Long:  "Route, plan, retrieve and select components, then print the assembled prompt with its selection and plan stats.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runCompose,
	}
	composeCmd.Flags().String("thread", "cli", "Conversation thread id")
	composeCmd.Flags().Bool("text", false, "Only print the prompt text")

	RootCmd.AddCommand(planCmd, composeCmd)
}

func runPlan(cmd *cobra.Command, args []string) {
	e, done := openEngine(cmd.Context())
	defer done()

	decision, plan := e.Plan(cmd.Context(), strings.Join(args, " "), nil)
	printJSON(cmd, map[string]any{
		"decision": decision,
		"plan":     plan,
	})
}

func runCompose(cmd *cobra.Command, args []string) {
	thread, _ := cmd.Flags().GetString("thread")
	textOnly, _ := cmd.Flags().GetBool("text")

	e, done := openEngine(cmd.Context())
	defer done()

	turn := e.PlanAndCompose(cmd.Context(), thread, strings.Join(args, " "), nil)
	if textOnly {
		fmt.Fprintln(cmd.OutOrStdout(), turn.PromptText)
		return
	}
	printJSON(cmd, turn)
}
