package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"market-chat/internal/cache"
	"market-chat/internal/logger"
	"market-chat/internal/models"
	"market-chat/internal/repositories"
)

const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 50

	// candidateFactor widens the SQL prefilter so fuzzy ranking has room to
	// reorder before the result is cut to the requested limit.
	candidateFactor = 5
	cacheTTL        = 5 * time.Minute
)

// Directory resolves display identities and listing summaries and searches
// for users to start conversations with.
type Directory struct {
	repo  repositories.DirectoryRepository
	cache cache.Cache
}

// New builds a Directory. A nil cache disables caching.
func New(repo repositories.DirectoryRepository, c cache.Cache) *Directory {
	if c == nil {
		c = cache.Noop{}
	}
	return &Directory{repo: repo, cache: c}
}

// SearchUsers returns at most limit users other than viewerID whose name,
// email or handle fuzzily matches query, best match first.
func (d *Directory) SearchUsers(ctx context.Context, viewerID int64, query string, limit int) ([]models.UserIdentity, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.UserIdentity{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	candidates, err := d.repo.SearchUsers(ctx, query, viewerID, limit*candidateFactor)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}

	ranked := rank(query, candidates)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

type identities []models.UserIdentity

func (u identities) String(i int) string {
	return u[i].Name + " " + u[i].Handle + " " + u[i].Email
}

func (u identities) Len() int { return len(u) }

func rank(query string, candidates []models.UserIdentity) []models.UserIdentity {
	matches := fuzzy.FindFrom(strings.ToLower(query), identities(candidates))

	out := make([]models.UserIdentity, 0, len(candidates))
	seen := make(map[int]struct{}, len(matches))
	for _, m := range matches {
		seen[m.Index] = struct{}{}
		out = append(out, candidates[m.Index])
	}
	// The SQL prefilter matched per field; keep anything fuzzy scored zero.
	for i, c := range candidates {
		if _, ok := seen[i]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// ResolveUsers returns identities keyed by id. Unknown ids are absent.
func (d *Directory) ResolveUsers(ctx context.Context, ids []int64) (map[int64]models.UserIdentity, error) {
	result := make(map[int64]models.UserIdentity, len(ids))
	misses := d.fromCache(ctx, "user", unique(ids), func(id int64, raw string) bool {
		var u models.UserIdentity
		if json.Unmarshal([]byte(raw), &u) != nil {
			return false
		}
		result[id] = u
		return true
	})
	if len(misses) == 0 {
		return result, nil
	}

	users, err := d.repo.GetUsers(ctx, misses)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for _, u := range users {
		result[u.ID] = u
		d.store(ctx, cacheKey("user", u.ID), u)
	}
	return result, nil
}

// ResolveListings returns listing summaries keyed by id. Unknown ids are absent.
func (d *Directory) ResolveListings(ctx context.Context, ids []int64) (map[int64]models.ListingSummary, error) {
	result := make(map[int64]models.ListingSummary, len(ids))
	misses := d.fromCache(ctx, "listing", unique(ids), func(id int64, raw string) bool {
		var l models.ListingSummary
		if json.Unmarshal([]byte(raw), &l) != nil {
			return false
		}
		result[id] = l
		return true
	})
	if len(misses) == 0 {
		return result, nil
	}

	listings, err := d.repo.GetListings(ctx, misses)
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}
	for _, l := range listings {
		result[l.ID] = l
		d.store(ctx, cacheKey("listing", l.ID), l)
	}
	return result, nil
}

// fromCache feeds cached entries to accept and returns the ids that still
// need loading.
func (d *Directory) fromCache(ctx context.Context, kind string, ids []int64, accept func(int64, string) bool) []int64 {
	var misses []int64
	for _, id := range ids {
		raw, err := d.cache.Get(ctx, cacheKey(kind, id))
		if err != nil {
			if !errors.Is(err, cache.ErrMiss) {
				logger.Warn().Err(err).Str("kind", kind).Int64("id", id).Msg("directory cache read failed")
			}
			misses = append(misses, id)
			continue
		}
		if !accept(id, raw) {
			misses = append(misses, id)
		}
	}
	return misses
}

func (d *Directory) store(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, key, string(raw), cacheTTL); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("directory cache write failed")
	}
}

func cacheKey(kind string, id int64) string {
	return fmt.Sprintf("directory:%s:%d", kind, id)
}

func unique(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
