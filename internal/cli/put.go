package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/memcompose/internal/model"
	"github.com/rcliao/memcompose/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "put [content]",
		Short: "Store a memory",
		Long:  "Store a memory. Content can be a positional arg or piped via stdin.",
		Run:   runPut,
	}

	cmd.Flags().String("kind", string(model.KindFact), "Kind: fact or qa")
	cmd.Flags().StringP("tags", "t", "", "Comma-separated tags")
	cmd.Flags().StringP("importance", "i", string(model.ImportanceMedium), "Importance: low, medium, high")

	RootCmd.AddCommand(cmd)
}

func runPut(cmd *cobra.Command, args []string) {
	kind, _ := cmd.Flags().GetString("kind")
	tagsStr, _ := cmd.Flags().GetString("tags")
	importance, _ := cmd.Flags().GetString("importance")

	var content string
	if len(args) > 0 {
		content = strings.Join(args, " ")
	} else {
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) == 0 {
			b, err := io.ReadAll(os.Stdin)
			if err != nil {
				exitErr("read stdin", err)
			}
			content = string(b)
		}
	}
	if strings.TrimSpace(content) == "" {
		exitErr("put", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	e, done := openEngine(cmd.Context())
	defer done()

	mem, err := e.Remember(cmd.Context(), store.PutParams{
		Owner:      owner,
		Content:    strings.TrimSpace(content),
		Kind:       model.Kind(kind),
		Tags:       splitTags(tagsStr),
		Importance: model.Importance(importance),
	})
	if err != nil {
		exitErr("put", err)
	}
	printJSON(cmd, mem)
}
