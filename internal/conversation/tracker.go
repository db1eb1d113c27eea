// Package conversation keeps the per-thread ConversationContext: inferred
// conversation type and expertise, recent error count and a token-bounded
// rolling summary of turns that fell out of the short-term history.
package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rcliao/memcompose/internal/config"
	"github.com/rcliao/memcompose/internal/logging"
	"github.com/rcliao/memcompose/internal/model"
)

// Store persists thread contexts.
type Store interface {
	SaveThread(ctx context.Context, c model.ConversationContext) error
	LoadThread(ctx context.Context, threadID string) (model.ConversationContext, error)
}

const recentQueryLimit = 5

type thread struct {
	mu     sync.Mutex
	loaded bool
	ctx    model.ConversationContext
}

// Tracker owns one context per thread. Threads never share state; each is
// updated under its own lock.
type Tracker struct {
	store Store
	cfg   config.HistoryConfig
	now   func() time.Time

	mu      sync.Mutex
	threads map[string]*thread
}

// New creates a Tracker. store may be nil to keep contexts in memory only.
func New(store Store, cfg config.HistoryConfig) *Tracker {
	return &Tracker{store: store, cfg: cfg, now: time.Now, threads: make(map[string]*thread)}
}

func (t *Tracker) thread(id string) *thread {
	t.mu.Lock()
	defer t.mu.Unlock()
	th, ok := t.threads[id]
	if !ok {
		th = &thread{}
		t.threads[id] = th
	}
	return th
}

// load fills th from the store once. Callers hold th.mu.
func (t *Tracker) load(ctx context.Context, id string, th *thread) {
	if th.loaded {
		return
	}
	th.loaded = true
	th.ctx = model.NewConversationContext(id)
	if t.store == nil {
		return
	}
	c, err := t.store.LoadThread(ctx, id)
	switch {
	case err == nil:
		th.ctx = c
	case errors.Is(err, model.ErrNotFound):
	default:
		logging.From(ctx).Warn("failed to load thread context, starting fresh", "thread", id, "error", err)
	}
}

// Context returns the current context of threadID.
func (t *Tracker) Context(ctx context.Context, threadID string) model.ConversationContext {
	th := t.thread(threadID)
	th.mu.Lock()
	defer th.mu.Unlock()
	t.load(ctx, threadID, th)
	return clone(th.ctx)
}

// Observe folds a new user query and the thread's history into its context
// and persists the result. Persistence failures are logged only.
func (t *Tracker) Observe(ctx context.Context, threadID, query string, history []model.Message) model.ConversationContext {
	th := t.thread(threadID)
	th.mu.Lock()
	defer th.mu.Unlock()
	t.load(ctx, threadID, th)

	c := clone(th.ctx)
	c.Turns++
	c.ConversationType = ConversationType(query)
	c.UserExpertise = Expertise(append(recentUser(history, 10), query))
	c.RecentErrorCount = ErrorCount(history)
	c.RecentQueries = append(c.RecentQueries, query)
	if n := len(c.RecentQueries); n > recentQueryLimit {
		c.RecentQueries = c.RecentQueries[n-recentQueryLimit:]
	}

	if len(history) < c.Summarized {
		c.Summarized = 0
	}
	if limit := t.cfg.MaxMessages; limit > 0 && len(history)-limit > c.Summarized {
		older := history[c.Summarized : len(history)-limit]
		c.Summary = Summarize(c.Summary, older, t.cfg.SummaryTokens)
		c.Summarized = len(history) - limit
	}
	c.UpdatedAt = t.now().UTC()
	th.ctx = c

	if t.store != nil {
		if err := t.store.SaveThread(ctx, c); err != nil {
			logging.From(ctx).Warn("failed to persist thread context", "thread", threadID, "error", err)
		}
	}
	return clone(c)
}

func clone(c model.ConversationContext) model.ConversationContext {
	c.RecentQueries = append([]string(nil), c.RecentQueries...)
	return c
}

func recentUser(history []model.Message, n int) []string {
	var out []string
	for i := len(history) - 1; i >= 0 && len(out) < n; i-- {
		if history[i].Role == model.RoleUser {
			out = append(out, history[i].Content)
		}
	}
	return out
}

// Summarize appends a one-line gist of each message to prev and drops the
// oldest gists until the summary fits maxTokens.
func Summarize(prev string, msgs []model.Message, maxTokens int) string {
	var parts []string
	if p := strings.TrimSpace(prev); p != "" {
		parts = strings.Split(p, summarySep)
	}
	for _, m := range msgs {
		g := gist(m.Content)
		if g == "" {
			continue
		}
		if m.Role == model.RoleAssistant {
			parts = append(parts, "assistant said "+g)
		} else {
			parts = append(parts, "user said "+g)
		}
	}
	for len(parts) > 0 && maxTokens > 0 && model.EstimateTokens(strings.Join(parts, summarySep)) > maxTokens {
		parts = parts[1:]
	}
	return strings.Join(parts, summarySep)
}

const (
	summarySep = "; "
	gistLen    = 80
)

// gist is the first sentence of s, cut to gistLen bytes on a word or rune
// boundary.
func gist(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if i := strings.IndexAny(s, ".?!"); i >= 0 {
		s = s[:i+1]
	}
	if len(s) > gistLen {
		cut := strings.LastIndex(s[:gistLen], " ")
		if cut <= 0 {
			cut = gistLen
			for cut > 0 && !utf8.RuneStart(s[cut]) {
				cut--
			}
		}
		s = s[:cut] + "..."
	}
	return strings.ReplaceAll(s, summarySep, ", ")
}
