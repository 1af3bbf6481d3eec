// Copyright 2024 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2024 Institute of the Czech National Corpus,
//                Faculty of Arts, Charles University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package triggers

import (
	"context"
	"errors"
	"fmt"
	"recsearch/indexer"
	"recsearch/metrics"
	"recsearch/record"
	"recsearch/reporting"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrDispatcherClosed = errors.New("dispatcher is not running")

type queuedEvent struct {
	event  Event
	result chan error
}

// Dispatcher serializes record change events coming from all
// the listeners and applies them to the index one by one.
type Dispatcher struct {
	indexer        *indexer.Indexer
	source         indexer.RecordSource
	queue          chan queuedEvent
	reporting      reporting.IReporting
	metrics        *metrics.Metrics
	reportInterval time.Duration

	statsLock sync.Mutex
	stats     reporting.TriggerStats
	done      chan struct{}
}

func (d *Dispatcher) updateStats(fn func(st *reporting.TriggerStats)) {
	d.statsLock.Lock()
	fn(&d.stats)
	d.statsLock.Unlock()
}

// Stats returns events statistics since the last report
func (d *Dispatcher) Stats() reporting.TriggerStats {
	d.statsLock.Lock()
	defer d.statsLock.Unlock()
	return d.stats
}

func (d *Dispatcher) flushStats() {
	d.statsLock.Lock()
	curr := d.stats
	d.stats = reporting.TriggerStats{}
	d.statsLock.Unlock()
	if curr.ShowsActivity() {
		log.Info().
			Int("numUpserted", curr.NumUpserted).
			Int("numDeleted", curr.NumDeleted).
			Int("numSkipped", curr.NumSkipped).
			Int("numErrors", curr.NumErrors).
			Msg("regular record change events report")
		d.reporting.WriteTriggerStatus(curr)
	}
}

func (d *Dispatcher) observe(ev Event, status string) {
	d.metrics.TriggerEventsTotal.WithLabelValues(ev.Source, string(ev.Action), status).Inc()
}

func (d *Dispatcher) upsert(ctx context.Context, ev Event) error {
	rec, err := d.source.Load(ctx, ev.RecordType, ev.PK)
	if errors.Is(err, record.ErrNotFound) {
		log.Warn().
			Str("recordType", ev.RecordType).
			Str("pk", ev.PK).
			Msg("changed record not found in source, removing from index")
		if err := d.indexer.OnRecordDeleted(ctx, ev.RecordType, ev.PK); err != nil {
			return err
		}
		d.updateStats(func(st *reporting.TriggerStats) { st.NumDeleted++ })
		return nil

	} else if err != nil {
		return fmt.Errorf("failed to load record %s:%s: %w", ev.RecordType, ev.PK, err)
	}
	if ev.Action == ActionCreated {
		err = d.indexer.OnRecordCreated(ctx, rec)

	} else {
		err = d.indexer.OnRecordUpdated(ctx, rec)
	}
	if err != nil {
		return err
	}
	d.updateStats(func(st *reporting.TriggerStats) { st.NumUpserted++ })
	return nil
}

func (d *Dispatcher) handle(ctx context.Context, ev Event) (err error) {
	defer func() {
		if err != nil {
			d.observe(ev, "error")
			d.updateStats(func(st *reporting.TriggerStats) { st.NumErrors++ })
			log.Error().
				Err(err).
				Str("source", ev.Source).
				Str("action", string(ev.Action)).
				Str("recordType", ev.RecordType).
				Str("pk", ev.PK).
				Msg("failed to process record change event")
		}
	}()
	if err = ev.Validate(); err != nil {
		return
	}
	if _, ok := d.indexer.IndexConfig(ev.RecordType); !ok {
		d.observe(ev, "skipped")
		d.updateStats(func(st *reporting.TriggerStats) { st.NumSkipped++ })
		return
	}
	switch ev.Action {
	case ActionCreated, ActionUpdated:
		err = d.upsert(ctx, ev)
	case ActionDeleted:
		err = d.indexer.OnRecordDeleted(ctx, ev.RecordType, ev.PK)
		if err == nil {
			d.updateStats(func(st *reporting.TriggerStats) { st.NumDeleted++ })
		}
	}
	if err == nil {
		d.observe(ev, "ok")
	}
	return
}

// Submit passes an event to the dispatcher and waits
// for the result of its processing.
func (d *Dispatcher) Submit(ctx context.Context, ev Event) error {
	item := queuedEvent{event: ev, result: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrDispatcherClosed
	case d.queue <- item:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-item.result:
		return err
	case <-d.done:
		return ErrDispatcherClosed
	}
}

// Run processes queued events until ctx is cancelled
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.reportInterval)
	defer ticker.Stop()
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("about to close triggers.Dispatcher")
			d.flushStats()
			return nil
		case item := <-d.queue:
			item.result <- d.handle(ctx, item.event)
		case <-ticker.C:
			d.flushStats()
		}
	}
}

func NewDispatcher(
	conf *Conf,
	idx *indexer.Indexer,
	source indexer.RecordSource,
	rep reporting.IReporting,
	mtr *metrics.Metrics,
) *Dispatcher {
	return &Dispatcher{
		indexer:        idx,
		source:         source,
		queue:          make(chan queuedEvent, conf.QueueSize),
		reporting:      rep,
		metrics:        mtr,
		reportInterval: conf.ReportInterval(),
		done:           make(chan struct{}),
	}
}
