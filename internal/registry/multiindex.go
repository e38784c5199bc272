package registry

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// SearchStrategy picks how multiple configured indexes are consulted for a
// single project, grounded on registry_client.rs's simple_detail multi-index
// loop and the teacher's use of errgroup in internal/downloader.
type SearchStrategy int

const (
	// FirstIndex consults indexes in order and stops at the first one that
	// has the project, matching pip's default (and uv's "first index"
	// resolution mode) so private indexes shadow the public one.
	FirstIndex SearchStrategy = iota
	// UnsafeBestMatch queries every configured index concurrently and
	// returns the first index, in configured order, that has the project —
	// "unsafe" because every index is asked, so it can leak a dependency
	// confusion if the indexes disagree about what a name means.
	UnsafeBestMatch
)

const maxFanOut = 8

// SearchDetail resolves a project's detail document across indexes
// according to strategy, returning the detail document and the index it
// came from.
func SearchDetail(ctx context.Context, client Client, indexes []Index, project string, strategy SearchStrategy) (*ProjectIndex, Index, error) {
	if len(indexes) == 0 {
		return nil, Index{}, fmt.Errorf("no indexes configured")
	}

	switch strategy {
	case FirstIndex:
		return searchFirstIndex(ctx, client, indexes, project)
	case UnsafeBestMatch:
		return searchBestMatch(ctx, client, indexes, project)
	default:
		return searchFirstIndex(ctx, client, indexes, project)
	}
}

// searchFirstIndex polls indexes sequentially, moving on to the next one on
// a DecisionNotFound/DecisionRetryable failure, but halts the whole search
// the moment an index's response classifies as DecisionFatal: that status
// means the index itself is broken or misconfigured in a way no other
// index's answer can paper over, so trying the rest would just mask it.
func searchFirstIndex(ctx context.Context, client Client, indexes []Index, project string) (*ProjectIndex, Index, error) {
	var lastErr error

	for _, idx := range indexes {
		detail, err := client.SimpleDetail(ctx, idx, project)
		if err == nil {
			return detail, idx, nil
		}

		var statusErr *StatusDecisionError
		if errors.As(err, &statusErr) && statusErr.Decision == DecisionFatal {
			return nil, Index{}, fmt.Errorf("index %s failed fatally for %s, halting search: %w", idx.URL, project, err)
		}

		lastErr = err
	}

	return nil, Index{}, fmt.Errorf("project %s not found on any configured index: %w", project, lastErr)
}

// searchBestMatch fans out to every index concurrently (bounded to
// maxFanOut), then deterministically returns the first result in the
// caller's original index order rather than whichever goroutine finished
// first, so output stays reproducible across runs regardless of network
// timing.
func searchBestMatch(ctx context.Context, client Client, indexes []Index, project string) (*ProjectIndex, Index, error) {
	results := make([]*ProjectIndex, len(indexes))
	errs := make([]error, len(indexes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFanOut)

	for i, idx := range indexes {
		g.Go(func() error {
			detail, err := client.SimpleDetail(gctx, idx, project)
			results[i] = detail
			errs[i] = err

			return nil // collect per-index errors without aborting the group
		})
	}

	_ = g.Wait()

	for i, detail := range results {
		if detail != nil {
			return detail, indexes[i], nil
		}
	}

	return nil, Index{}, fmt.Errorf("project %s not found on any of %d indexes: %w", project, len(indexes), errs[0])
}
