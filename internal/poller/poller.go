package poller

import (
	"context"
	"log"
	"time"

	"github.com/comanda-pos/api/internal/client"
	"github.com/comanda-pos/api/internal/enum"
)

// Fetcher retrieves the tenant's active order set. Satisfied by
// *client.Client.
type Fetcher interface {
	FetchKitchenOrders(ctx context.Context) ([]client.KitchenOrder, error)
}

// Options tunes the poll loop. Zero values fall back to the defaults the
// kitchen station ships with.
type Options struct {
	Interval     time.Duration // default 5s
	FetchTimeout time.Duration // default 10s

	// Print is invoked once per newly seen pending order. Never retried:
	// an order is marked seen whether or not printing succeeded.
	Print func(ctx context.Context, order client.KitchenOrder)

	// OnUpdate receives every cycle's order set for display. degraded is
	// true when the cycle's fetch failed and orders holds the previous
	// snapshot semantics (nil).
	OnUpdate func(orders []client.KitchenOrder, degraded bool)
}

// Poller drives the kitchen sync loop: fetch, diff against the seen set,
// print what is new.
type Poller struct {
	fetch fetcherFunc
	opts  Options

	seen   map[int64]struct{}
	primed bool
}

type fetcherFunc func(ctx context.Context) ([]client.KitchenOrder, error)

// New creates a Poller around the given fetcher.
func New(f Fetcher, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	return &Poller{
		fetch: f.FetchKitchenOrders,
		opts:  opts,
		seen:  make(map[int64]struct{}),
	}
}

// Run polls until ctx is cancelled. The first successful cycle only primes
// the seen set so a restart does not reprint the whole backlog.
func (p *Poller) Run(ctx context.Context) {
	p.cycle(ctx)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *Poller) cycle(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.opts.FetchTimeout)
	defer cancel()

	orders, err := p.fetch(fetchCtx)
	if err != nil {
		log.Printf("ERROR: fetch kitchen orders: %v", err)
		if p.opts.OnUpdate != nil {
			p.opts.OnUpdate(nil, true)
		}
		return
	}

	if !p.primed {
		for _, o := range orders {
			p.seen[o.ID] = struct{}{}
		}
		p.primed = true
	} else {
		for _, o := range orders {
			if _, ok := p.seen[o.ID]; ok {
				continue
			}
			// Every unseen order is marked before any printing, so a
			// failed print is never retried and an order first seen past
			// pending never prints later.
			p.seen[o.ID] = struct{}{}
			if o.Status != enum.OrderStatusPending {
				continue
			}
			if p.opts.Print != nil {
				p.opts.Print(ctx, o)
			}
		}
	}

	if p.opts.OnUpdate != nil {
		p.opts.OnUpdate(orders, false)
	}
}
