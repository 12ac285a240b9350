package docsdk

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// GetDocuments fetches ids concurrently. Individual failures do not abort the batch.
func (c *Client) GetDocuments(ctx context.Context, ids []string) *BatchResult[*Document] {
	docs, errs := batch(ctx, c.batchLimit, ids, c.GetDocument)
	return collect(ids, docs, errs)
}

// CreateDocuments creates pages concurrently. Keys in the failure list are titles.
func (c *Client) CreateDocuments(ctx context.Context, params []*CreateParams) *BatchResult[*WriteResult] {
	results, errs := batch(ctx, c.batchLimit, params, c.CreateDocument)
	keys := make([]string, len(params))
	for i, p := range params {
		keys[i] = p.Title
	}
	return collect(keys, results, errs)
}

// UpdateDocuments updates pages concurrently. Keys in the failure list are ids.
func (c *Client) UpdateDocuments(ctx context.Context, params []*UpdateParams) *BatchResult[*WriteResult] {
	results, errs := batch(ctx, c.batchLimit, params, c.UpdateDocument)
	keys := make([]string, len(params))
	for i, p := range params {
		keys[i] = p.ID
	}
	return collect(keys, results, errs)
}

func batch[In, Out any](ctx context.Context, limit int, in []In, fn func(context.Context, In) (Out, error)) ([]Out, []error) {
	out := make([]Out, len(in))
	errs := make([]error, len(in))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range in {
		g.Go(func() error {
			out[i], errs[i] = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()

	return out, errs
}

func collect[T any](keys []string, out []T, errs []error) *BatchResult[T] {
	res := &BatchResult[T]{}
	for i, err := range errs {
		if err != nil {
			res.Failures = append(res.Failures, &BatchFailure{Key: keys[i], Err: err})
			continue
		}
		res.Successes = append(res.Successes, out[i])
	}
	return res
}
