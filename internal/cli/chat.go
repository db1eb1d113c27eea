package cli

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/memcompose/internal/feedback"
	"github.com/rcliao/memcompose/internal/logging"
	"github.com/rcliao/memcompose/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant on stdin",
		Long: "Reads one message per line. Each reply is scored and learned from automatically. " +
			"Type /rate N (1-5) to rate the previous reply, /quit to exit.",
		Run: runChat,
	}

	cmd.Flags().String("thread", "cli", "Conversation thread id")
	cmd.Flags().Bool("verbose", false, "Print plan stats after each reply")

	RootCmd.AddCommand(cmd)
}

func runChat(cmd *cobra.Command, args []string) {
	thread, _ := cmd.Flags().GetString("thread")
	verbose, _ := cmd.Flags().GetBool("verbose")
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	e, done := openEngine(ctx)
	defer done()

	var (
		history []model.Message
		last    *model.Selection
	)
	in := bufio.NewScanner(os.Stdin)
	fmt.Fprint(out, "> ")
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		switch {
		case line == "":
		case line == "/quit" || line == "/exit":
			return
		case strings.HasPrefix(line, "/rate"):
			rateLast(cmd, e.SubmitFeedback, last, strings.TrimSpace(strings.TrimPrefix(line, "/rate")))
		default:
			r, err := e.Respond(ctx, thread, line, history)
			if err != nil {
				logging.From(ctx).Error("reply failed", "error", err)
				fmt.Fprintf(out, "error: %v\n", err)
				break
			}
			fmt.Fprintln(out, r.Text)
			if verbose {
				printJSON(cmd, r.Turn.Stats)
			}
			now := time.Now()
			history = append(history,
				model.Message{Role: model.RoleUser, Content: line, At: now},
				model.Message{Role: model.RoleAssistant, Content: r.Text, At: now},
			)
			sel := r.Turn.Selection
			last = &sel
		}
		fmt.Fprint(out, "> ")
	}
	if err := in.Err(); err != nil {
		exitErr("read stdin", err)
	}
}

func rateLast(cmd *cobra.Command, submit func(model.Selection, float64) error, last *model.Selection, arg string) {
	if last == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "nothing to rate yet")
		return
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "usage: /rate 1-5")
		return
	}
	q, err := feedback.NormalizeRating(feedback.ScaleStars, n)
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "error: %v\n", err)
		return
	}
	if err := submit(*last, q); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "error: %v\n", err)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rated %d/5\n", n)
}
