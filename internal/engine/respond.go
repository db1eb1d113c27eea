package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/memcompose/internal/action"
	"github.com/rcliao/memcompose/internal/feedback"
	"github.com/rcliao/memcompose/internal/logging"
	"github.com/rcliao/memcompose/internal/model"
	"github.com/rcliao/memcompose/internal/router"
	"github.com/rcliao/memcompose/internal/store"
)

// queryMemoryLimit caps the records listed for a query_memory action.
const queryMemoryLimit = 10

// Reply is a completed turn.
type Reply struct {
	Text       string              `json:"text"`
	Action     action.Action       `json:"-"`
	Turn       Turn                `json:"turn"`
	Assessment feedback.Assessment `json:"assessment"`
	TokensUsed int                 `json:"tokens_used"`
	// Saved is the memory stored from this exchange, if any.
	Saved *model.Memory `json:"saved,omitempty"`
	// Agent is set when the completion asked to switch persona.
	Agent string `json:"agent,omitempty"`
	// Category is set when the completion suggested a new memory tag.
	Category string `json:"category,omitempty"`
}

// Respond composes a prompt for query, completes it, applies any action
// the completion returned, scores the reply and queues that score as
// feedback. Completion failures are returned wrapping
// model.ErrCompletionFailure; everything else degrades.
func (e *Engine) Respond(ctx context.Context, threadID, query string, history []model.Message) (*Reply, error) {
	if e.completion == nil {
		return nil, goerr.Wrap(model.ErrCompletionFailure, "no completion provider configured")
	}
	turn := e.PlanAndCompose(ctx, threadID, query, history)

	cctx := ctx
	if d := e.cfg.Completion.Timeout; d > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	resp, err := e.completion.Complete(cctx, turn.PromptText, []model.Message{{Role: model.RoleUser, Content: query}})
	if err != nil {
		if !errors.Is(err, model.ErrCompletionFailure) {
			err = goerr.Wrap(model.ErrCompletionFailure, "completion failed", goerr.V("cause", err.Error()))
		}
		return nil, goerr.Wrap(err, "no reply", goerr.V("selection", turn.Selection.ID))
	}

	r := &Reply{Turn: turn, TokensUsed: resp.TokensUsed, Action: action.Parse(resp.Text)}
	e.dispatch(ctx, query, r)

	r.Assessment = feedback.Score(query, r.Text)
	if err := e.SubmitFeedback(turn.Selection, r.Assessment.Score); err != nil {
		logging.From(ctx).Warn("implicit feedback not queued", "selection", turn.Selection.ID, "error", err)
	}

	if r.Saved == nil {
		if v := router.ShouldSave(query, r.Text); v.Save {
			tags := router.ExtractTags(query)
			m, err := e.Remember(ctx, store.PutParams{
				Content:    model.QAContent(query, r.Text),
				Kind:       model.KindQA,
				Tags:       tags,
				Importance: router.InferImportance(query, tags),
			})
			if err != nil {
				logging.From(ctx).Warn("failed to save exchange", "error", err)
			} else {
				r.Saved = m
			}
		}
	}
	return r, nil
}

func (e *Engine) dispatch(ctx context.Context, query string, r *Reply) {
	log := logging.From(ctx)
	switch a := r.Action.(type) {
	case action.Respond:
		r.Text = a.Text

	case action.UpdateMemory:
		r.Text = orDefault(a.Text, "Noted.")
		m, err := e.Remember(ctx, store.PutParams{
			Owner:      a.Owner,
			Content:    a.Content,
			Kind:       model.KindFact,
			Tags:       a.Tags,
			Importance: a.Importance,
		})
		if err != nil {
			log.Warn("update_memory action failed", "error", err)
			break
		}
		r.Saved = m

	case action.QueryMemory:
		owner := a.Owner
		if owner == "" {
			owner = e.owner
		}
		mems, err := e.store.Query(ctx, store.QueryParams{Owner: owner, Tags: a.Tags, Limit: queryMemoryLimit})
		if err != nil {
			log.Warn("query_memory action failed", "error", err)
			r.Text = orDefault(a.Text, "I couldn't look that up right now.")
			break
		}
		r.Text = memoryListing(a.Text, a.Tags, mems)

	case action.SuggestCategory:
		log.Info("completion suggested a memory category", "category", a.Category)
		r.Category = a.Category
		r.Text = orDefault(a.Text, fmt.Sprintf("I could start keeping track of %q.", a.Category))

	case action.SwitchAgent:
		log.Info("completion asked to switch agent", "agent", a.Agent)
		r.Agent = a.Agent
		r.Text = a.Text

	default:
		r.Text = r.Action.Reply()
	}
	if strings.TrimSpace(r.Text) == "" {
		log.Warn("completion produced an empty reply", "query_words", len(router.Words(query)))
	}
}

func memoryListing(lead string, tags []string, mems []model.Memory) string {
	var b strings.Builder
	if lead != "" {
		b.WriteString(lead)
		b.WriteString("\n")
	}
	if len(mems) == 0 {
		fmt.Fprintf(&b, "I don't have anything stored for %s.", strings.Join(tags, ", "))
		return b.String()
	}
	for _, m := range mems {
		b.WriteString("- ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
