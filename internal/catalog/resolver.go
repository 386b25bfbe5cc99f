package catalog

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/superapp-core/internal/obs"
)

// Resolver turns a set of product ids into a Snapshot by querying the Source concurrently,
// consulting the Redis cache first. Unknown products are left out of the result.
type Resolver struct {
	Source      Source
	Cache       *Cache
	Concurrency int
	Logger      zerolog.Logger
}

// Resolve returns a snapshot covering every id the source still lists.
func (r *Resolver) Resolve(ctx context.Context, ids []string) (Snapshot, error) {
	if r == nil || r.Source == nil {
		return nil, errors.New("catalog: resolver not configured")
	}
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	var mu sync.Mutex
	out := make(Snapshot, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	limit := r.Concurrency
	if limit <= 0 {
		limit = 8
	}
	g.SetLimit(limit)
	for _, id := range unique {
		id := id
		g.Go(func() error {
			p, ok, err := r.resolveOne(gctx, id)
			if err != nil || !ok {
				return err
			}
			mu.Lock()
			out[id] = p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resolver) resolveOne(ctx context.Context, id string) (Product, bool, error) {
	var cached Product
	hit, err := r.Cache.GetJSON(ctx, productKey(id), &cached)
	if err != nil {
		r.Logger.Warn().Err(err).Str("product_id", id).Msg("catalog cache read failed")
	}
	if hit {
		obs.CatalogLookupsTotal.WithLabelValues("hit").Inc()
		return cached, true, nil
	}

	p, err := r.Source.FetchProduct(ctx, id)
	switch {
	case errors.Is(err, ErrProductNotFound):
		obs.CatalogLookupsTotal.WithLabelValues("not_found").Inc()
		return Product{}, false, nil
	case err != nil:
		obs.CatalogLookupsTotal.WithLabelValues("error").Inc()
		return Product{}, false, err
	}
	obs.CatalogLookupsTotal.WithLabelValues("miss").Inc()
	if err := r.Cache.SetJSON(ctx, productKey(id), p); err != nil {
		r.Logger.Warn().Err(err).Str("product_id", id).Msg("catalog cache write failed")
	}
	return p, true, nil
}
