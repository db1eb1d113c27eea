package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memories as JSON",
		Long:  "Export memories as a JSON array, oldest first. --all exports every owner.",
		Run:   runExport,
	}

	cmd.Flags().Bool("all", false, "Export every owner")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	all, _ := cmd.Flags().GetBool("all")
	scope := owner
	if all {
		scope = ""
	}

	s := openStore(loadConfig())
	defer s.Close()

	memories, err := s.ExportAll(cmd.Context(), scope)
	if err != nil {
		exitErr("export", err)
	}
	printJSON(cmd, memories)
}
