package maintenance_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/rcliao/memcompose/internal/config"
	"github.com/rcliao/memcompose/internal/maintenance"
)

type fakePopulation struct {
	flushes atomic.Int32
	prunes  atomic.Int32
}

func (f *fakePopulation) Flush(context.Context) error {
	f.flushes.Add(1)
	return nil
}

func (f *fakePopulation) Prune() []string {
	f.prunes.Add(1)
	return []string{"gone"}
}

func TestNewRegistersJobs(t *testing.T) {
	s, err := maintenance.New(context.Background(), &fakePopulation{}, config.MaintenanceConfig{
		FlushSchedule: "@every 1m",
		PruneSchedule: "@every 10m",
	})
	gt.NoError(t, err)
	gt.Equal(t, s.Jobs(), 2)

	s, err = maintenance.New(context.Background(), &fakePopulation{}, config.MaintenanceConfig{})
	gt.NoError(t, err)
	gt.Equal(t, s.Jobs(), 0)
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := maintenance.New(context.Background(), &fakePopulation{}, config.MaintenanceConfig{FlushSchedule: "not a schedule"})
	gt.Error(t, err)
}

func TestRunOncePrunesThenFlushes(t *testing.T) {
	pop := &fakePopulation{}
	s, err := maintenance.New(context.Background(), pop, config.MaintenanceConfig{})
	gt.NoError(t, err)

	s.RunOnce()
	gt.Equal(t, pop.prunes.Load(), int32(1))
	gt.Equal(t, pop.flushes.Load(), int32(1))
}

func TestStartStopIdempotent(t *testing.T) {
	s, err := maintenance.New(context.Background(), &fakePopulation{}, config.MaintenanceConfig{FlushSchedule: "@every 1h"})
	gt.NoError(t, err)
	s.Start()
	s.Start()
	s.Stop()
	s.Stop()
}
