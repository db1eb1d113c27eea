package stage_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/rcliao/memcompose/internal/stage"
)

func TestOrElse(t *testing.T) {
	boom := errors.New("boom")

	r := stage.Fail[int](boom).OrElse(func(err error) int {
		gt.True(t, errors.Is(err, boom))
		return 7
	})
	gt.Equal(t, r.Value, 7)
	gt.True(t, r.Degraded)
	gt.False(t, r.Failed())

	ok := stage.OK(3).OrElse(func(error) int { return 9 })
	gt.Equal(t, ok.Value, 3)
	gt.False(t, ok.Degraded)
}

func TestTry(t *testing.T) {
	r := stage.Try(func() (string, error) { return "", errors.New("nope") })
	gt.True(t, r.Failed())

	// a second fallback never overrides the first recovery
	r = r.OrElse(func(error) string { return "first" }).OrElse(func(error) string { return "second" })
	gt.Equal(t, r.Must(), "first")
}
