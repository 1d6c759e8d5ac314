// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

package services

import (
	"context"

	"go.uber.org/atomic"

	"github.com/lowRISC/asu-keywrap/src/asu/engine"
	"github.com/lowRISC/asu-keywrap/src/asu/errcode"
	"github.com/lowRISC/asu-keywrap/src/asu/resmgr"
	"github.com/lowRISC/asu-keywrap/src/asu/scratch"
)

// Op is an engine operation run by the dispatcher. It is invoked again with
// the same engines and arena for as long as it returns CmdInProgress.
type Op func(e engine.Set, a *scratch.Arena) error

// Stats is a snapshot of the dispatcher counters.
type Stats struct {
	InFlight  int64
	Completed uint64
	Reinvoked uint64
}

// Dispatcher runs operations with exclusive use of the engines they need and
// of the scratch arena.
type Dispatcher struct {
	engines engine.Set
	res     *resmgr.Manager
	pool    *scratch.Pool

	inFlight  *atomic.Int64
	completed *atomic.Uint64
	reinvoked *atomic.Uint64
}

// NewDispatcher returns a dispatcher over engines.
func NewDispatcher(engines engine.Set, res *resmgr.Manager, pool *scratch.Pool) *Dispatcher {
	return &Dispatcher{
		engines:   engines,
		res:       res,
		pool:      pool,
		inFlight:  atomic.NewInt64(0),
		completed: atomic.NewUint64(0),
		reinvoked: atomic.NewUint64(0),
	}
}

// Run allocates ids to requester, borrows the arena and runs op until it
// stops reporting CmdInProgress. ctx is checked before every re-invocation.
// Resources are always taken before the arena. A failure to zeroize the
// arena afterwards is reported unless op already failed.
func (d *Dispatcher) Run(ctx context.Context, requester string, ids []resmgr.Resource, op Op) (err error) {
	d.inFlight.Inc()
	defer d.inFlight.Dec()

	release, err := d.res.Allocate(ctx, requester, ids...)
	if err != nil {
		return err
	}
	defer release()

	a, releaseArena, err := d.pool.Acquire(ctx)
	if err != nil {
		return errcode.Wrap(errcode.ResourceBusy, err)
	}
	defer func() {
		err = errcode.Update(err, releaseArena())
	}()

	for {
		err := op(d.engines, a)
		if errcode.CodeOf(err) != errcode.CmdInProgress {
			d.completed.Inc()
			return err
		}
		d.reinvoked.Inc()
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		InFlight:  d.inFlight.Load(),
		Completed: d.completed.Load(),
		Reinvoked: d.reinvoked.Load(),
	}
}
