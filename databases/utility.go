package databases

import "go.mongodb.org/mongo-driver/mongo/options"

type mongoPaginate struct {
	limit int64
	page  int64
}

// newMongoPaginate pages by limit. Pages start at 1; anything lower is the
// first page.
func newMongoPaginate(limit, page int64) *mongoPaginate {
	if page < 1 {
		page = 1
	}
	return &mongoPaginate{
		limit: limit,
		page:  page,
	}
}

func (mp *mongoPaginate) skip() int64 {
	return mp.page*mp.limit - mp.limit
}

func (mp *mongoPaginate) getPaginatedOpts() *options.FindOptions {
	l := mp.limit
	skip := mp.skip()
	fOpt := options.FindOptions{Limit: &l, Skip: &skip}

	return &fOpt
}

// Paginate returns the window of items selected by limit and page. A zero
// limit returns items unchanged.
func Paginate[T any](items []T, limit, page int64) []T {
	if limit <= 0 {
		return items
	}
	mp := newMongoPaginate(limit, page)
	start := mp.skip()
	if start >= int64(len(items)) {
		return items[:0]
	}
	end := start + mp.limit
	if end > int64(len(items)) {
		end = int64(len(items))
	}
	return items[start:end]
}
