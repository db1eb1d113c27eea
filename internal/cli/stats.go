package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Run:   runStats,
	}
	ownersCmd := &cobra.Command{
		Use:   "owners",
		Short: "List memory owners with counts",
		Run:   runOwners,
	}

	RootCmd.AddCommand(statsCmd, ownersCmd)
}

func runStats(cmd *cobra.Command, args []string) {
	s := openStore(loadConfig())
	defer s.Close()

	stats, err := s.Stats(cmd.Context())
	if err != nil {
		exitErr("stats", err)
	}
	printJSON(cmd, stats)
}

func runOwners(cmd *cobra.Command, args []string) {
	s := openStore(loadConfig())
	defer s.Close()

	rows, err := s.Owners(cmd.Context())
	if err != nil {
		exitErr("list owners", err)
	}
	printJSON(cmd, rows)
}
