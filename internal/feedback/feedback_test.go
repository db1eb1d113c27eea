package feedback_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/rcliao/memcompose/internal/feedback"
	"github.com/rcliao/memcompose/internal/model"
)

type recordingLearner struct {
	mu        sync.Mutex
	qualities []float64
	started   chan struct{}
	gate      chan struct{}
	err       error
}

func (l *recordingLearner) RecordOutcome(_ context.Context, _ model.Selection, q float64) error {
	if l.started != nil {
		select {
		case l.started <- struct{}{}:
		default:
		}
	}
	if l.gate != nil {
		<-l.gate
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.qualities = append(l.qualities, q)
	return l.err
}

type levelTracker struct {
	mu     sync.Mutex
	levels []model.MemoryLevel
}

func (p *levelTracker) RecordOutcome(level model.MemoryLevel, _, _ float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.levels = append(p.levels, level)
}

func TestUpdaterDrainsOnClose(t *testing.T) {
	l := &recordingLearner{}
	p := &levelTracker{}
	u := feedback.NewUpdater(context.Background(), l, p, 64, 0.1)

	for i := 0; i < 20; i++ {
		gt.NoError(t, u.Submit(model.Selection{ID: "s", Level: model.LevelLight}, 0.8))
	}
	u.Close()

	gt.A(t, l.qualities).Length(20)
	gt.A(t, p.levels).Length(20)
	gt.Equal(t, u.Counters().Applied, int64(20))
	gt.True(t, errors.Is(u.Submit(model.Selection{}, 1), feedback.ErrClosed))
	u.Close()
}

func TestUpdaterDropsWhenFull(t *testing.T) {
	l := &recordingLearner{started: make(chan struct{}, 1), gate: make(chan struct{})}
	u := feedback.NewUpdater(context.Background(), l, nil, 1, 0.1)

	gt.NoError(t, u.Submit(model.Selection{ID: "1"}, 1))
	<-l.started
	gt.NoError(t, u.Submit(model.Selection{ID: "2"}, 1))
	gt.True(t, errors.Is(u.Submit(model.Selection{ID: "3"}, 1), feedback.ErrQueueFull))
	gt.Equal(t, u.Counters().Dropped, int64(1))

	close(l.gate)
	u.Close()
	gt.Equal(t, u.Counters().Applied, int64(2))
}

func TestUpdaterCountsFailures(t *testing.T) {
	l := &recordingLearner{err: errors.New("repository closed")}
	p := &levelTracker{}
	u := feedback.NewUpdater(context.Background(), l, p, 4, 0.1)
	gt.NoError(t, u.Submit(model.Selection{Level: model.LevelFull}, 1))
	u.Close()

	gt.Equal(t, u.Counters().Failed, int64(1))
	gt.A(t, p.levels).Length(0)
}

func TestScore(t *testing.T) {
	good := feedback.Score("How do I fix this error in my function?",
		"Here's how to fix it. First, check the return value. Next, you can wrap the error with context so the caller sees where it failed.")
	gt.True(t, good.Success)
	gt.Number(t, good.Score).LessOrEqual(1)

	bad := feedback.Score("What is my sister's name?", "Sorry, I don't know")
	gt.False(t, bad.Success)
	gt.Number(t, bad.Score).Less(0.3)
	gt.A(t, bad.Issues).Length(3)

	floor := feedback.Score("?", "Sorry, I don't know. I'm not sure. Unclear. I cannot.")
	gt.Equal(t, floor.Score, 0.0)
}

func TestNormalizeRating(t *testing.T) {
	for _, tc := range []struct {
		scale  string
		rating int
		want   float64
	}{
		{feedback.ScaleStars, 1, 0},
		{feedback.ScaleStars, 3, 0.5},
		{feedback.ScaleStars, 5, 1},
		{feedback.ScaleThumbs, 1, 1},
		{feedback.ScaleThumbs, 0, 0},
	} {
		got, err := feedback.NormalizeRating(tc.scale, tc.rating)
		gt.NoError(t, err)
		gt.Equal(t, got, tc.want)
	}

	_, err := feedback.NormalizeRating(feedback.ScaleStars, 6)
	gt.Error(t, err)
	_, err = feedback.NormalizeRating(feedback.ScaleThumbs, -1)
	gt.Error(t, err)
	_, err = feedback.NormalizeRating("emoji", 1)
	gt.Error(t, err)
}
