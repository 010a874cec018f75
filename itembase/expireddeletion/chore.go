// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package expireddeletion sweeps expired items out of every table with
// expiration enabled.
package expireddeletion

import (
	"context"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/sync2"
	"storj.io/pretender/itembase"
)

var (
	// Error defines the expireddeletion chore errors class.
	Error = errs.Class("expired deletion chore")
	mon   = monkit.Package()
)

// Config contains configurable values for the expired item sweeper.
type Config struct {
	Interval  time.Duration `help:"the time between each sweep for expired items" default:"5m" testDefault:"10s"`
	Enabled   bool          `help:"set if expired item sweeping is enabled or not" default:"true"`
	BatchSize int           `help:"how many expired items to delete from a table per sweep" default:"1000"`
}

// Chore implements the expired item sweeper.
//
// architecture: Chore
type Chore struct {
	log      *zap.Logger
	config   Config
	itembase *itembase.DB

	nowFn func() time.Time
	Loop  *sync2.Cycle
}

// NewChore creates a new instance of the expireddeletion chore.
func NewChore(log *zap.Logger, config Config, itembase *itembase.DB) *Chore {
	return &Chore{
		log:      log,
		config:   config,
		itembase: itembase,

		nowFn: time.Now,
		Loop:  sync2.NewCycle(config.Interval),
	}
}

// Run starts the expireddeletion loop service.
func (chore *Chore) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	if !chore.config.Enabled {
		return nil
	}

	return chore.Loop.Run(ctx, chore.deleteExpiredItems)
}

// Close stops the expireddeletion chore.
func (chore *Chore) Close() error {
	chore.Loop.Close()
	return nil
}

// TestingSetNow allows tests to have the chore act as if the current time is whatever they want.
func (chore *Chore) TestingSetNow(nowFn func() time.Time) {
	chore.nowFn = nowFn
}

func (chore *Chore) deleteExpiredItems(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	chore.log.Debug("deleting expired items")

	metas, err := chore.itembase.ListTTLTables(ctx)
	if err != nil {
		return Error.Wrap(err)
	}

	for _, meta := range metas {
		deleted, err := chore.itembase.DeleteExpiredItems(ctx, meta, chore.config.BatchSize)
		if err != nil {
			chore.log.Warn("expired item sweep failed",
				zap.String("table", meta.Name), zap.Error(err))
			continue
		}
		if deleted > 0 {
			chore.log.Debug("expired items deleted",
				zap.String("table", meta.Name), zap.Int("count", deleted))
			mon.IntVal("expired_items_deleted").Observe(int64(deleted))
		}
	}
	return nil
}
