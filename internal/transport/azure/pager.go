package azure

import (
	"context"
	"errors"
)

type fetchPage[T any] func(ctx context.Context, pageURL string) ([]T, string, error)

// pager follows nextLink until the service stops returning one.
type pager[T any] struct {
	next    string
	started bool
	fetch   fetchPage[T]
}

func newPager[T any](first string, fetch fetchPage[T]) *pager[T] {
	return &pager[T]{next: first, fetch: fetch}
}

func (p *pager[T]) More() bool {
	return !p.started || p.next != ""
}

func (p *pager[T]) NextPage(ctx context.Context) ([]T, error) {
	if !p.More() {
		return nil, errors.New("acs: no more pages")
	}
	items, nextLink, err := p.fetch(ctx, p.next)
	if err != nil {
		return nil, err
	}
	p.started = true
	p.next = nextLink
	return items, nil
}
