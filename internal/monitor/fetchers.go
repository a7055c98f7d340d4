package monitor

import (
	"context"
	"errors"
	"fmt"
	"lotwatch/internal/lots"
)

// FetcherChain asks each fetcher in turn and returns the first lot found.
// The api sometimes 404s lots the site still renders, so the next.js data
// route usually comes second.
type FetcherChain []LotFetcher

func (c FetcherChain) Lot(ctx context.Context, id string) (lots.Lot, error) {
	if len(c) == 0 {
		return lots.Lot{}, fmt.Errorf("no lot fetchers configured")
	}
	var errs []error
	for _, fetcher := range c {
		lot, err := fetcher.Lot(ctx, id)
		if err == nil {
			return lot, nil
		}
		if ctx.Err() != nil {
			return lots.Lot{}, ctx.Err()
		}
		errs = append(errs, err)
	}
	return lots.Lot{}, errors.Join(errs...)
}

// LotFetcherFunc adapts a function into a LotFetcher.
type LotFetcherFunc func(ctx context.Context, id string) (lots.Lot, error)

func (f LotFetcherFunc) Lot(ctx context.Context, id string) (lots.Lot, error) {
	return f(ctx, id)
}
