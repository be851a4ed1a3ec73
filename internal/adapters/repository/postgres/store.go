// Package postgres implements the listing store and comparison log on
// PostgreSQL through the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/okian/flatrank/internal/adapters/repository"
	"github.com/okian/flatrank/internal/domain/band"
	"github.com/okian/flatrank/internal/domain/model"
	"github.com/okian/flatrank/pkg/logger"
)

const (
	defaultMaxOpenConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
)

const listingColumns = `l.id, l.url, l.rooms, l.price, l.price_per_area, l.area, l.location,
	l.image_url, l.listed_at, l.band, l.status, l.active, l.created_at, l.updated_at,
	r.rating, r.deviation, r.volatility`

const listingFrom = ` FROM listings l JOIN ratings r ON r.listing_id = l.id`

// Store is a repository.Store backed by PostgreSQL.
type Store struct {
	db     *sql.DB
	logger logger.Logger

	maxOpenConns int
}

var _ repository.Store = (*Store)(nil)

// Open connects to dsn. The schema is expected to be migrated already.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := New(db, opts...)
	db.SetMaxOpenConns(s.maxOpenConns)
	db.SetMaxIdleConns(s.maxOpenConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	if err := s.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info(ctx, "connected to postgres", logger.Int("max_open_conns", s.maxOpenConns))
	return s, nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:           db,
		logger:       logger.Get().Named("postgres"),
		maxOpenConns: defaultMaxOpenConns,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the pool, for the advisory locker.
func (s *Store) DB() *sql.DB { return s.db }

// Ping implements repository.Store.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Close implements repository.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanListing(sc scanner) (model.RatedListing, error) {
	var (
		l        model.RatedListing
		listedAt sql.NullTime
		b        string
		status   string
	)
	err := sc.Scan(
		&l.ID, &l.URL, &l.Attributes.Rooms, &l.Attributes.Price, &l.Attributes.PricePerArea,
		&l.Attributes.Area, &l.Attributes.Location, &l.Attributes.ImageURL, &listedAt,
		&b, &status, &l.Active, &l.CreatedAt, &l.UpdatedAt,
		&l.Rating.Rating, &l.Rating.Deviation, &l.Rating.Volatility,
	)
	if err != nil {
		return model.RatedListing{}, err
	}
	if listedAt.Valid {
		t := listedAt.Time.UTC()
		l.Attributes.ListedAt = &t
	}
	l.Band = band.ID(b)
	l.Status = model.Status(status)
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return l, nil
}

func scanOutcome(sc scanner) (model.Outcome, error) {
	var o model.Outcome
	if err := sc.Scan(&o.ID, &o.WinnerID, &o.LoserID, &o.CreatedAt); err != nil {
		return model.Outcome{}, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}

func int64s(ids []model.ListingID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

// Create implements repository.ListingStore.
func (s *Store) Create(ctx context.Context, url string) (model.RatedListing, error) {
	r := model.NewRating()
	l, err := withTx(ctx, s.db, func(tx *sql.Tx) (model.RatedListing, error) {
		var id model.ListingID
		if err := tx.QueryRowContext(ctx,
			`INSERT INTO listings (url) VALUES ($1) RETURNING id`, url).Scan(&id); err != nil {
			return model.RatedListing{}, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ratings (listing_id, rating, deviation, volatility) VALUES ($1, $2, $3, $4)`,
			int64(id), r.Rating, r.Deviation, r.Volatility); err != nil {
			return model.RatedListing{}, err
		}
		return queryOne(ctx, tx, `SELECT `+listingColumns+listingFrom+` WHERE l.id = $1`, []any{int64(id)}, scanListing)
	})
	if err != nil {
		return model.RatedListing{}, fmt.Errorf("create listing %s: %w", url, mapError(err, repository.ErrNotFound, repository.ErrDuplicate))
	}
	return l, nil
}

// FindByID implements repository.ListingStore.
func (s *Store) FindByID(ctx context.Context, id model.ListingID) (model.RatedListing, error) {
	l, err := queryOne(ctx, s.db, `SELECT `+listingColumns+listingFrom+` WHERE l.id = $1`, []any{int64(id)}, scanListing)
	if err != nil {
		return model.RatedListing{}, fmt.Errorf("listing %d: %w", id, mapError(err, repository.ErrNotFound, repository.ErrDuplicate))
	}
	return l, nil
}

// FindByURL implements repository.ListingStore.
func (s *Store) FindByURL(ctx context.Context, url string) (model.RatedListing, error) {
	l, err := queryOne(ctx, s.db, `SELECT `+listingColumns+listingFrom+` WHERE l.url = $1`, []any{url}, scanListing)
	if err != nil {
		return model.RatedListing{}, fmt.Errorf("url %s: %w", url, mapError(err, repository.ErrNotFound, repository.ErrDuplicate))
	}
	return l, nil
}

// ListAll implements repository.ListingStore.
func (s *Store) ListAll(ctx context.Context, includeInactive bool) ([]model.RatedListing, error) {
	q := `SELECT ` + listingColumns + listingFrom + ` WHERE l.active OR $1 ORDER BY l.id`
	out, err := queryMany(ctx, s.db, q, []any{includeInactive}, scanListing)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	return out, nil
}

// ListEligibleActiveByBand implements repository.ListingStore.
func (s *Store) ListEligibleActiveByBand(ctx context.Context, id band.ID) ([]model.RatedListing, error) {
	if id == "" {
		return []model.RatedListing{}, nil
	}
	q := `SELECT ` + listingColumns + listingFrom + `
		WHERE l.band = $1 AND l.active AND l.status = 'eligible'
		ORDER BY r.rating DESC, l.id ASC`
	out, err := queryMany(ctx, s.db, q, []any{string(id)}, scanListing)
	if err != nil {
		return nil, fmt.Errorf("list band %s: %w", id, err)
	}
	return out, nil
}

// UpdateAttributes implements repository.ListingStore.
func (s *Store) UpdateAttributes(ctx context.Context, id model.ListingID, attrs model.Attributes, b band.ID, status model.Status) error {
	var listedAt sql.NullTime
	if attrs.ListedAt != nil {
		listedAt = sql.NullTime{Time: *attrs.ListedAt, Valid: true}
	}
	err := execExpectOne(ctx, s.db, `UPDATE listings SET
			rooms = $2, price = $3, price_per_area = $4, area = $5, location = $6,
			image_url = $7, listed_at = $8, band = $9, status = $10, updated_at = now()
		WHERE id = $1`,
		int64(id), attrs.Rooms, attrs.Price, attrs.PricePerArea, attrs.Area, attrs.Location,
		attrs.ImageURL, listedAt, string(b), string(status))
	if err != nil {
		return fmt.Errorf("update attributes of listing %d: %w", id, mapError(err, repository.ErrNotFound, repository.ErrDuplicate))
	}
	return nil
}

func (s *Store) updateListing(ctx context.Context, id model.ListingID, set string, args ...any) error {
	err := execExpectOne(ctx, s.db, `UPDATE listings SET `+set+`, updated_at = now() WHERE id = $1`,
		append([]any{int64(id)}, args...)...)
	if err != nil {
		return fmt.Errorf("update listing %d: %w", id, mapError(err, repository.ErrNotFound, repository.ErrDuplicate))
	}
	return nil
}

// SetStatus implements repository.ListingStore.
func (s *Store) SetStatus(ctx context.Context, id model.ListingID, status model.Status) error {
	return s.updateListing(ctx, id, `status = $2`, string(status))
}

// UpdateRating implements repository.ListingStore.
func (s *Store) UpdateRating(ctx context.Context, id model.ListingID, r model.Rating) error {
	err := execExpectOne(ctx, s.db, `UPDATE ratings SET rating = $2, deviation = $3, volatility = $4, updated_at = now()
		WHERE listing_id = $1`, int64(id), r.Rating, r.Deviation, r.Volatility)
	if err != nil {
		return fmt.Errorf("update rating of listing %d: %w", id, mapError(err, repository.ErrNotFound, repository.ErrDuplicate))
	}
	return nil
}

// Deactivate implements repository.ListingStore.
func (s *Store) Deactivate(ctx context.Context, id model.ListingID) error {
	return s.updateListing(ctx, id, `active = FALSE`)
}

// Reactivate implements repository.ListingStore.
func (s *Store) Reactivate(ctx context.Context, id model.ListingID) error {
	return s.updateListing(ctx, id, `active = TRUE, status = 'pending'`)
}

// CountByStatus implements repository.ListingStore.
func (s *Store) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	type row struct {
		status string
		n      int
	}
	rows, err := queryMany(ctx, s.db, `SELECT status, count(*) FROM listings WHERE active GROUP BY status`, nil,
		func(sc scanner) (row, error) {
			var r row
			return r, sc.Scan(&r.status, &r.n)
		})
	if err != nil {
		return nil, fmt.Errorf("count listings: %w", err)
	}
	out := make(map[model.Status]int, 4)
	for _, st := range model.Statuses() {
		out[st] = 0
	}
	for _, r := range rows {
		out[model.Status(r.status)] = r.n
	}
	return out, nil
}

// Append implements repository.ComparisonLog.
func (s *Store) Append(ctx context.Context, o model.Outcome) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO comparisons (id, winner_id, loser_id, created_at) VALUES ($1, $2, $3, $4)`,
		o.ID, int64(o.WinnerID), int64(o.LoserID), o.CreatedAt)
	if err != nil {
		return fmt.Errorf("append outcome %d>%d: %w", o.WinnerID, o.LoserID, mapError(err, repository.ErrNotFound, repository.ErrDuplicate))
	}
	return nil
}

// ListOutcomesAmong implements repository.ComparisonLog.
func (s *Store) ListOutcomesAmong(ctx context.Context, ids []model.ListingID) ([]model.Outcome, error) {
	if len(ids) < 2 {
		return []model.Outcome{}, nil
	}
	out, err := queryMany(ctx, s.db, `SELECT id, winner_id, loser_id, created_at FROM comparisons
		WHERE winner_id = ANY($1) AND loser_id = ANY($1)
		ORDER BY created_at, id`, []any{int64s(ids)}, scanOutcome)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	return out, nil
}

// JudgedPairKeys implements repository.ComparisonLog.
func (s *Store) JudgedPairKeys(ctx context.Context, ids []model.ListingID) (model.PairKeySet, error) {
	set := make(model.PairKeySet)
	if len(ids) < 2 {
		return set, nil
	}
	keys, err := queryMany(ctx, s.db, `SELECT DISTINCT LEAST(winner_id, loser_id), GREATEST(winner_id, loser_id)
		FROM comparisons WHERE winner_id = ANY($1) AND loser_id = ANY($1)`, []any{int64s(ids)},
		func(sc scanner) (model.PairKey, error) {
			var k model.PairKey
			return k, sc.Scan(&k.Lo, &k.Hi)
		})
	if err != nil {
		return nil, fmt.Errorf("list judged pairs: %w", err)
	}
	for _, k := range keys {
		set.Add(k)
	}
	return set, nil
}

// CountByListing implements repository.ComparisonLog.
func (s *Store) CountByListing(ctx context.Context, id model.ListingID) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM comparisons WHERE winner_id = $1 OR loser_id = $1`, int64(id)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outcomes of listing %d: %w", id, err)
	}
	return n, nil
}
