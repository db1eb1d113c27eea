package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rcliao/memcompose/internal/config"
	"github.com/rcliao/memcompose/internal/model"
)

func init() {
	componentsCmd := &cobra.Command{
		Use:   "components",
		Short: "Inspect the prompt component population",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List components with their learned statistics",
		Run:   runComponentsList,
	}
	listCmd.Flags().String("category", "", "Filter by category")

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Restore any missing built-in seed components",
		Run:   runComponentsSeed,
	}

	componentsCmd.AddCommand(listCmd, seedCmd)

	profilesCmd := &cobra.Command{
		Use:   "profiles",
		Short: "List the named planner profiles",
		Run:   runProfiles,
	}

	RootCmd.AddCommand(componentsCmd, profilesCmd)
}

func runComponentsList(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")

	e, done := openEngine(cmd.Context())
	defer done()

	var out []model.PromptComponent
	for _, c := range e.Components() {
		if category != "" && string(c.Category) != category {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Fitness() > out[j].Fitness()
	})
	printJSON(cmd, out)
}

func runComponentsSeed(cmd *cobra.Command, args []string) {
	e, done := openEngine(cmd.Context())
	defer done()

	n, err := e.Reseed(cmd.Context())
	if err != nil {
		exitErr("seed components", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"added":%d}`+"\n", n)
}

func runProfiles(cmd *cobra.Command, args []string) {
	active := loadConfig().Profile
	out := make([]map[string]any, 0, len(config.Profiles))
	for _, name := range config.ProfileNames() {
		out = append(out, map[string]any{
			"active":  name == active,
			"profile": config.Profiles[name],
		})
	}
	printJSON(cmd, out)
}
