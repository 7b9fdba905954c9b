package repositories

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"market-chat/internal/models"
)

// DirectoryRepository reads the marketplace user and listing tables.
type DirectoryRepository interface {
	SearchUsers(ctx context.Context, query string, excludeID int64, limit int) ([]models.UserIdentity, error)
	GetUsers(ctx context.Context, ids []int64) ([]models.UserIdentity, error)
	GetListings(ctx context.Context, ids []int64) ([]models.ListingSummary, error)
}

// DirectoryRepo is a sqlx-backed DirectoryRepository.
type DirectoryRepo struct {
	db *sqlx.DB
}

// NewDirectoryRepo constructs a DirectoryRepo.
func NewDirectoryRepo(db *sqlx.DB) *DirectoryRepo {
	return &DirectoryRepo{db: db}
}

// SearchUsers returns users whose name, email or handle contains the query
// characters in order (a subsequence match), excluding excludeID.
func (r *DirectoryRepo) SearchUsers(ctx context.Context, query string, excludeID int64, limit int) ([]models.UserIdentity, error) {
	pattern := SubsequencePattern(query)
	users := []models.UserIdentity{}
	err := r.db.SelectContext(ctx, &users, r.db.Rebind(`SELECT id, name, email, handle, avatar_url FROM users
        WHERE id <> ?
        AND (LOWER(name) LIKE ? ESCAPE '\' OR LOWER(email) LIKE ? ESCAPE '\' OR LOWER(handle) LIKE ? ESCAPE '\')
        ORDER BY id ASC
        LIMIT ?`), excludeID, pattern, pattern, pattern, limit)
	return users, err
}

// GetUsers loads identities for ids; unknown ids are absent from the result.
func (r *DirectoryRepo) GetUsers(ctx context.Context, ids []int64) ([]models.UserIdentity, error) {
	users := []models.UserIdentity{}
	if len(ids) == 0 {
		return users, nil
	}
	query, args, err := sqlx.In(`SELECT id, name, email, handle, avatar_url FROM users WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	err = r.db.SelectContext(ctx, &users, r.db.Rebind(query), args...)
	return users, err
}

// GetListings loads listing summaries for ids; unknown ids are absent.
func (r *DirectoryRepo) GetListings(ctx context.Context, ids []int64) ([]models.ListingSummary, error) {
	listings := []models.ListingSummary{}
	if len(ids) == 0 {
		return listings, nil
	}
	query, args, err := sqlx.In(`SELECT id, title, image_url FROM listings WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	err = r.db.SelectContext(ctx, &listings, r.db.Rebind(query), args...)
	return listings, err
}

// SubsequencePattern turns "jdo" into "%j%d%o%", escaping LIKE wildcards.
func SubsequencePattern(query string) string {
	var b strings.Builder
	b.WriteByte('%')
	for _, ch := range strings.ToLower(strings.TrimSpace(query)) {
		switch ch {
		case '\\', '%', '_':
			b.WriteByte('\\')
		}
		b.WriteRune(ch)
		b.WriteByte('%')
	}
	return b.String()
}
