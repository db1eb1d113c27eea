package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/memcompose/internal/feedback"
)

func init() {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Rate a recorded selection",
		Long:  "Apply an explicit rating to the components of a selection printed by compose or chat.",
		Run:   runFeedback,
	}

	cmd.Flags().String("selection", "", "Selection id (required)")
	cmd.Flags().IntP("rating", "r", 0, "Rating: 1-5 for stars, 0 or 1 for thumbs")
	cmd.Flags().String("scale", feedback.ScaleStars, "Rating scale: stars or thumbs")

	cmd.MarkFlagRequired("selection")
	cmd.MarkFlagRequired("rating")

	RootCmd.AddCommand(cmd)
}

func runFeedback(cmd *cobra.Command, args []string) {
	id, _ := cmd.Flags().GetString("selection")
	rating, _ := cmd.Flags().GetInt("rating")
	scale, _ := cmd.Flags().GetString("scale")

	quality, err := feedback.NormalizeRating(scale, rating)
	if err != nil {
		exitErr("feedback", err)
	}

	e, done := openEngine(cmd.Context())
	if err := e.FeedbackFor(cmd.Context(), id, quality); err != nil {
		done()
		exitErr("feedback", err)
	}
	// closing drains the queue so the update is applied and flushed
	done()
	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"selection":%q,"quality":%.2f}`+"\n", id, quality)
}
