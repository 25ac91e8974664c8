package tfm

import (
	"context"
	"time"
)

// pageSpec describes how a paginated collection is requested: how to build
// the endpoint for a given page, the per-page timeout, and an optional
// mutation applied to each parsed entry before accumulation.
type pageSpec struct {
	endpoint func(page int) string
	timeout  time.Duration
	stamp    func(*Entry)
}

// aggregationState tracks one in-flight keyed accumulation. The generation
// is the client-wide counter value assigned when the fetch started; a state
// whose generation no longer matches has been superseded.
type aggregationState struct {
	gen     uint64
	entries []Entry
}

// fetchCollection walks all pages of a keyed collection and returns the
// complete accumulated entries. Starting a fetch discards any in-flight
// accumulation under the same key: the older fetch observes the discard at
// its next page boundary and returns ErrSuperseded. hasNext is the sole
// continuation signal; totalPages is a hint only and must never fabricate
// extra requests.
func (c *Client) fetchCollection(ctx context.Context, key string, spec pageSpec) ([]Entry, error) {
	c.aggMux.Lock()
	c.aggGen++
	gen := c.aggGen
	state := &aggregationState{gen: gen, entries: nil}
	c.aggStates[key] = state
	c.aggMux.Unlock()

	page := 1
	for {
		entries, pg, err := c.fetchPage(ctx, spec, page)
		if nil != err {
			c.discard(key, gen)
			return nil, err
		}

		c.aggMux.Lock()
		cur, ok := c.aggStates[key]
		if !ok || cur.gen != gen {
			c.aggMux.Unlock()
			return nil, ErrSuperseded
		}
		cur.entries = append(cur.entries, entries...)

		if !pg.HasNext {
			accumulated := cur.entries
			delete(c.aggStates, key)
			c.aggMux.Unlock()
			c.logger.Debug().
				Str("key", key).
				Int("pages", pg.Page).
				Int("entries", len(accumulated)).
				Msg("Collection fetch completed")
			return accumulated, nil
		}
		c.aggMux.Unlock()

		page = pg.Page + 1
	}
}

// fetchSingle requests exactly one page and returns its entries without
// touching the keyed accumulation state.
func (c *Client) fetchSingle(ctx context.Context, endpoint string, timeout time.Duration, stamp func(*Entry)) ([]Entry, error) {
	entries, _, err := c.fetchPage(ctx, pageSpec{
		endpoint: func(int) string { return endpoint },
		timeout:  timeout,
		stamp:    stamp,
	}, 1)
	return entries, err
}

func (c *Client) fetchPage(ctx context.Context, spec pageSpec, page int) ([]Entry, Pagination, error) {
	env, err := c.getEnvelope(ctx, spec.endpoint(page), spec.timeout)
	if nil != err {
		return nil, Pagination{}, err
	}

	items := env.items()
	entries := make([]Entry, 0, len(items))
	for _, raw := range items {
		entry, err := parseEntry(raw)
		if nil != err {
			return nil, Pagination{}, err
		}
		if nil != spec.stamp {
			spec.stamp(&entry)
		}
		entries = append(entries, entry)
	}
	return entries, env.pagination(), nil
}

// CancelPending discards every in-flight accumulation. Fetches already past
// their last page are unaffected; the rest return ErrSuperseded at their
// next page boundary.
func (c *Client) CancelPending() {
	c.aggMux.Lock()
	defer c.aggMux.Unlock()
	for key := range c.aggStates {
		delete(c.aggStates, key)
	}
}

// discard drops the accumulation only if it still belongs to this fetch.
func (c *Client) discard(key string, gen uint64) {
	c.aggMux.Lock()
	defer c.aggMux.Unlock()
	if cur, ok := c.aggStates[key]; ok && cur.gen == gen {
		delete(c.aggStates, key)
	}
}
