package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/memcompose/internal/model"
	"github.com/rcliao/memcompose/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a memory in place",
		Args:  cobra.ExactArgs(1),
		Run:   runEdit,
	}

	cmd.Flags().String("content", "", "New content")
	cmd.Flags().StringP("tags", "t", "", "Replace tags (comma-separated)")
	cmd.Flags().StringP("importance", "i", "", "New importance: low, medium, high")

	RootCmd.AddCommand(cmd)
}

func runEdit(cmd *cobra.Command, args []string) {
	p := store.UpdateParams{ID: args[0]}
	if cmd.Flags().Changed("content") {
		v, _ := cmd.Flags().GetString("content")
		p.Content = &v
	}
	if cmd.Flags().Changed("tags") {
		v, _ := cmd.Flags().GetString("tags")
		tags := splitTags(v)
		p.Tags = &tags
	}
	if cmd.Flags().Changed("importance") {
		v, _ := cmd.Flags().GetString("importance")
		imp := model.Importance(v)
		p.Importance = &imp
	}
	if p.Content == nil && p.Tags == nil && p.Importance == nil {
		exitErr("edit", fmt.Errorf("nothing to change: pass --content, --tags or --importance"))
	}

	s := openStore(loadConfig())
	defer s.Close()

	mem, err := s.Update(cmd.Context(), p)
	if err != nil {
		exitErr("edit", err)
	}
	printJSON(cmd, mem)
}
