package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/rcliao/memcompose/internal/assembler"
	"github.com/rcliao/memcompose/internal/logging"
	"github.com/rcliao/memcompose/internal/model"
	"github.com/rcliao/memcompose/internal/retrieval"
	"github.com/rcliao/memcompose/internal/router"
	"github.com/rcliao/memcompose/internal/selector"
	"github.com/rcliao/memcompose/internal/store"
)

// routerWindow is how many trailing messages the router sees.
const routerWindow = 10

// PlanStats describes how a turn was planned and what degraded.
type PlanStats struct {
	Decision       router.Decision   `json:"decision"`
	Plan           model.MemoryPlan  `json:"plan"`
	Retrieval      retrieval.Stats   `json:"retrieval"`
	EffectiveLevel model.MemoryLevel `json:"effective_level"`
	MemoryCount    int               `json:"memory_count"`
	Degraded       bool              `json:"degraded"`
	Reasons        []string          `json:"reasons,omitempty"`
	ElapsedMs      int64             `json:"elapsed_ms"`
	// Err joins the degradation causes for errors.Is.
	Err error `json:"-"`
}

// Turn is the composed prompt for one user message.
type Turn struct {
	PromptText string                    `json:"prompt_text"`
	Selection  model.Selection           `json:"selection"`
	Stats      PlanStats                 `json:"plan_stats"`
	Memories   []model.Memory            `json:"memories,omitempty"`
	Context    model.ConversationContext `json:"context"`
	Skipped    []string                  `json:"skipped,omitempty"`
}

// PlanAndCompose runs one turn up to the assembled prompt. It never fails:
// every stage failure is recovered and listed in Stats.Reasons.
func (e *Engine) PlanAndCompose(ctx context.Context, threadID, query string, history []model.Message) Turn {
	start := time.Now()
	ctx = logging.With(ctx, logging.From(ctx).With("thread", threadID))
	var errs []error

	conv := e.tracker.Observe(ctx, threadID, query, history)

	decision := router.Classify(ctx, query, tail(history, routerWindow))
	if decision.Reason == router.Fallback().Reason {
		errs = append(errs, goerr.Wrap(model.ErrRouterFailure, "query could not be classified"))
	}

	plan := e.planner.Plan(ctx, decision.Level, query, e.dbStats(ctx))
	if plan.Degraded {
		errs = append(errs, goerr.Wrap(model.ErrPlannerFormula, "static plan used", goerr.V("level", plan.Level)))
	}

	res := e.retriever.Retrieve(ctx, plan, query, e.owner)
	if res.Degraded && res.Err != nil {
		errs = append(errs, res.Err)
	}

	out := e.selector.SelectAll(ctx, conv, selector.Options{
		ThreadID:  threadID,
		Level:     res.EffectiveLevel,
		HasMemory: res.Compressed != "",
	})
	if out.Degraded && out.Err != nil {
		errs = append(errs, out.Err)
	}
	out.Selection.ID = uuid.NewString()
	if err := e.store.SaveSelection(ctx, out.Selection); err != nil {
		logging.From(ctx).Warn("failed to record selection", "selection", out.Selection.ID, "error", err)
	}

	prompt := e.assembler.Assemble(ctx, assembler.Input{
		Components: out.Components,
		Memory:     res.Compressed,
		History:    history,
		Context:    conv,
	})

	reasons, joined := joinReasons(errs)
	turn := Turn{
		PromptText: prompt.Text,
		Selection:  out.Selection,
		Memories:   res.Included,
		Context:    conv,
		Skipped:    prompt.Skipped,
		Stats: PlanStats{
			Decision:       decision,
			Plan:           plan,
			Retrieval:      res.Stats,
			EffectiveLevel: res.EffectiveLevel,
			MemoryCount:    len(res.Included),
			Degraded:       len(errs) > 0,
			Reasons:        reasons,
			ElapsedMs:      time.Since(start).Milliseconds(),
			Err:            joined,
		},
	}
	logging.From(ctx).Debug("composed prompt",
		"level", decision.Level,
		"effective_level", res.EffectiveLevel,
		"memories", turn.Stats.MemoryCount,
		"selection", turn.Selection.ID,
		"degraded", turn.Stats.Degraded,
	)
	return turn
}

// SubmitFeedback queues a quality signal in [0,1] for a selection.
func (e *Engine) SubmitFeedback(sel model.Selection, quality float64) error {
	return e.updater.Submit(sel, quality)
}

// FeedbackFor looks up a recorded selection and queues quality for it.
func (e *Engine) FeedbackFor(ctx context.Context, selectionID string, quality float64) error {
	sel, err := e.store.GetSelection(ctx, selectionID)
	if err != nil {
		return err
	}
	return e.SubmitFeedback(*sel, quality)
}

// Plan routes and plans query without retrieving anything.
func (e *Engine) Plan(ctx context.Context, query string, history []model.Message) (router.Decision, model.MemoryPlan) {
	d := router.Classify(ctx, query, tail(history, routerWindow))
	return d, e.planner.Plan(ctx, d.Level, query, e.dbStats(ctx))
}

// Remember stores a memory under the engine's owner unless p names one,
// embedding and indexing it when embeddings are enabled.
func (e *Engine) Remember(ctx context.Context, p store.PutParams) (*model.Memory, error) {
	if p.Owner == "" {
		p.Owner = e.owner
	}
	if e.embedder != nil && len(p.Embedding) == 0 {
		vec, err := e.embedder.Embed(ctx, p.Content)
		if err != nil {
			logging.From(ctx).Warn("embedding failed, storing without vector", "error", err)
		} else {
			p.Embedding = vec
		}
	}

	m, err := e.store.Put(ctx, p)
	if err != nil {
		return nil, err
	}
	e.stats.Del("count:" + m.Owner)
	if e.index != nil && len(m.Embedding) > 0 {
		if err := e.index.Add(ctx, *m); err != nil {
			logging.From(ctx).Warn("failed to index memory", "id", m.ID, "error", err)
		}
	}
	return m, nil
}

// Forget deletes a memory from the store and the vector index.
func (e *Engine) Forget(ctx context.Context, id string) error {
	m, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := e.store.Delete(ctx, id); err != nil {
		return err
	}
	e.stats.Del("count:" + m.Owner)
	if e.index != nil {
		if err := e.index.Remove(ctx, m.Owner, id); err != nil {
			logging.From(ctx).Warn("failed to remove memory from index", "id", id, "error", err)
		}
	}
	return nil
}

func tail(msgs []model.Message, n int) []model.Message {
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
