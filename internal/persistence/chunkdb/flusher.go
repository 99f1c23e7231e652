package chunkdb

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync/atomic"
	"time"

	"github.com/clawcraft-master/clawcraft/internal/sim/chunk"
)

// Flusher drains dirty chunks from the store on an interval and writes them
// through a Backend. Failed batches are retained and merged into the next
// attempt, so every mutation reaches disk at least once; a newer snapshot of
// the same chunk supersedes a retained one.
type Flusher struct {
	store    *chunk.Store
	be       Backend
	interval time.Duration
	log      *log.Logger

	// retry is only touched on the Run goroutine.
	retry map[string]Record

	kick chan chan error

	FlushedTotal atomic.Uint64
	FlushErrors  atomic.Uint64
	Retained     atomic.Uint64
}

func NewFlusher(store *chunk.Store, be Backend, interval time.Duration, logger *log.Logger) *Flusher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[flush] ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Flusher{
		store:    store,
		be:       be,
		interval: interval,
		log:      logger,
		retry:    make(map[string]Record),
		kick:     make(chan chan error),
	}
}

// Run flushes until ctx is cancelled, then makes one final attempt so a clean
// shutdown loses nothing.
func (f *Flusher) Run(ctx context.Context) {
	t := time.NewTicker(f.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := f.flushOnce(); err == nil {
				f.log.Printf("final flush done")
			}
			return
		case <-t.C:
			_ = f.flushOnce()
		case resp := <-f.kick:
			resp <- f.flushOnce()
		}
	}
}

// FlushNow asks the Run goroutine for an immediate flush and waits for the
// result. Admin endpoints use it before backups.
func (f *Flusher) FlushNow(ctx context.Context) error {
	resp := make(chan error, 1)
	select {
	case f.kick <- resp:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Flusher) flushOnce() error {
	dirty := f.store.DrainDirty()

	batch := make([]Record, 0, len(dirty)+len(f.retry))
	seen := make(map[string]bool, len(dirty))
	for _, d := range dirty {
		batch = append(batch, Record{Key: d.Key, Pos: d.Pos, Data: d.Data})
		seen[d.Key] = true
	}
	for key, rec := range f.retry {
		if !seen[key] {
			batch = append(batch, rec)
		}
	}
	if len(batch) == 0 {
		return nil
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Key < batch[j].Key })

	if err := f.be.SaveBatch(batch); err != nil {
		for _, rec := range batch {
			f.retry[rec.Key] = rec
		}
		f.FlushErrors.Add(1)
		f.Retained.Store(uint64(len(f.retry)))
		f.log.Printf("flush failed, %d chunks retained: %v", len(f.retry), err)
		return err
	}

	f.retry = make(map[string]Record)
	f.FlushedTotal.Add(uint64(len(batch)))
	f.Retained.Store(0)
	return nil
}

// Hydrate loads every persisted chunk into the store before the world starts
// ticking. Saved chunks win over generation.
func Hydrate(store *chunk.Store, be Backend) (int, error) {
	n := 0
	err := be.ForEach(func(rec Record) error {
		if err := store.Adopt(rec.Pos, rec.Data); err != nil {
			return fmt.Errorf("adopt %s: %w", rec.Key, err)
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}
	return n, nil
}
