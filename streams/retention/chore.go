// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

// Package retention trims change records that have aged past the stream
// retention window.
package retention

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
	// Error defines the retention chore errors class.
	Error = errs.Class("stream retention chore")
	mon   = monkit.Package()
)

// Config contains configurable values for stream record trimming.
type Config struct {
	Interval  time.Duration `help:"the time between each sweep for aged stream records" default:"60m" testDefault:"10s"`
	Enabled   bool          `help:"set if stream record trimming is enabled or not" default:"true"`
	Retention time.Duration `help:"how long change records are retained" default:"24h"`
}

// Chore implements the stream record trimmer.
//
// architecture: Chore
type Chore struct {
	log      *zap.Logger
	config   Config
	itembase *itembase.DB

	nowFn func() time.Time
	Loop  *sync2.Cycle
}

// NewChore creates a new instance of the retention chore.
func NewChore(log *zap.Logger, config Config, itembase *itembase.DB) *Chore {
	return &Chore{
		log:      log,
		config:   config,
		itembase: itembase,

		nowFn: time.Now,
		Loop:  sync2.NewCycle(config.Interval),
	}
}

// Run starts the retention loop service.
func (chore *Chore) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	if !chore.config.Enabled {
		return nil
	}

	return chore.Loop.Run(ctx, chore.trimStreamRecords)
}

// Close stops the retention chore.
func (chore *Chore) Close() error {
	chore.Loop.Close()
	return nil
}

// TestingSetNow allows tests to have the chore act as if the current time is whatever they want.
func (chore *Chore) TestingSetNow(nowFn func() time.Time) {
	chore.nowFn = nowFn
}

func (chore *Chore) trimStreamRecords(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)
	chore.log.Debug("trimming stream records")

	metas, err := chore.itembase.ListStreamTables(ctx)
	if err != nil {
		return Error.Wrap(err)
	}

	cutoff := chore.nowFn().Add(-chore.config.Retention)
	for _, meta := range metas {
		trimmed, err := chore.itembase.TrimStreamRecords(ctx, meta.Name, cutoff)
		if err != nil {
			chore.log.Warn("stream trim failed",
				zap.String("table", meta.Name), zap.Error(err))
			continue
		}
		if trimmed > 0 {
			chore.log.Debug("stream records trimmed",
				zap.String("table", meta.Name), zap.Int64("count", trimmed))
			mon.IntVal("stream_records_trimmed").Observe(trimmed)
		}
	}
	return nil
}
