package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/risk/internal/domain"
	"example.com/risk/internal/events"
	"example.com/risk/internal/normalizer"
	"example.com/risk/internal/observability"
)

// Repository provides Postgres-backed persistence for quotes, profiles,
// feature windows and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateQuote persists the quote, marks any prior issued quote for the same
// animal as superseded, and records the corresponding outbox events inside a
// single transaction.
func (r *Repository) CreateQuote(ctx context.Context, quote domain.Quote) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", quote.TenantID); err != nil {
		return err
	}

	var supersededID *string
	row := tx.QueryRow(ctx,
		`UPDATE quotes SET state=$1 WHERE tenant_id=$2 AND animal_id=$3 AND state=$4 RETURNING quote_id`,
		domain.QuoteStateSuperseded, quote.TenantID, quote.AnimalID, domain.QuoteStateIssued,
	)
	var prior string
	if scanErr := row.Scan(&prior); scanErr == nil {
		supersededID = &prior
	} else if !errors.Is(scanErr, pgx.ErrNoRows) {
		err = scanErr
		return err
	}

	const insertQuote = `INSERT INTO quotes (quote_id, tenant_id, animal_id, premium, sum_insured, segment_region, segment_breed_class, segment_season, state, issued_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	_, err = tx.Exec(ctx, insertQuote,
		quote.ID,
		quote.TenantID,
		quote.AnimalID,
		quote.Premium,
		quote.SumInsured,
		quote.SegmentKey.Region,
		quote.SegmentKey.BreedClass,
		quote.SegmentKey.Season,
		quote.State,
		quote.IssuedAt,
	)
	if err != nil {
		return err
	}

	if err = r.insertOutbox(ctx, tx, quote, "quote.issued", events.QuoteIssued{
		QuoteID:    quote.ID,
		TenantID:   quote.TenantID,
		AnimalID:   quote.AnimalID,
		Premium:    quote.Premium,
		SumInsured: quote.SumInsured,
		Segment:    quote.SegmentKey.String(),
		IssuedAt:   quote.IssuedAt,
	}); err != nil {
		return err
	}

	if supersededID != nil {
		if err = r.insertOutbox(ctx, tx, quote, "quote.superseded", events.QuoteSuperseded{
			QuoteID:      *supersededID,
			TenantID:     quote.TenantID,
			AnimalID:     quote.AnimalID,
			SupersededBy: quote.ID,
			OccurredAt:   quote.IssuedAt,
		}); err != nil {
			return err
		}
	}

	err = tx.Commit(ctx)
	if err != nil {
		return err
	}
	observability.RecordQuoteIssued(quote.IssuedAt)
	return nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, quote domain.Quote, eventType string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	partitionKey := meta.PartitionKeyFn(quote)
	dedupeKey := fmt.Sprintf("%s:%s", quote.ID, eventType)

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		quote.TenantID,
		"quote",
		quote.ID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		partitionKey,
		body,
		dedupeKey,
	)
	return err
}

// GetQuote retrieves a quote by ID.
func (r *Repository) GetQuote(ctx context.Context, tenantID, quoteID string) (*domain.Quote, error) {
	const query = `SELECT quote_id, tenant_id, animal_id, premium, sum_insured, segment_region, segment_breed_class, segment_season, state, issued_at
        FROM quotes WHERE tenant_id=$1 AND quote_id=$2`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, err
	}

	quote, err := scanQuote(tx.QueryRow(ctx, query, tenantID, quoteID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return quote, nil
}

// ListQuotesByAnimal returns quotes for an animal ordered newest first.
func (r *Repository) ListQuotesByAnimal(ctx context.Context, tenantID, animalID string, cursor *domain.Cursor, limit int) ([]domain.Quote, *domain.Cursor, error) {
	args := []interface{}{tenantID, animalID, limit}
	query := `SELECT quote_id, tenant_id, animal_id, premium, sum_insured, segment_region, segment_breed_class, segment_season, state, issued_at
        FROM quotes WHERE tenant_id=$1 AND animal_id=$2`

	if cursor != nil {
		query += ` AND (issued_at, quote_id) < ($4, $5)`
		args = append(args, cursor.IssuedAt, cursor.ID)
	}

	query += ` ORDER BY issued_at DESC, quote_id DESC LIMIT $3`

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Quote, 0, limit)
	for rows.Next() {
		quote, err := scanQuote(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, *quote)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{IssuedAt: last.IssuedAt, ID: last.ID}
	}

	return results, nextCursor, nil
}

// GetProfile retrieves the registration record for an animal.
func (r *Repository) GetProfile(ctx context.Context, tenantID, animalID string) (*domain.AnimalProfile, error) {
	const query = `SELECT animal_id, sex, breed, breed_class, date_of_birth, owner_id, brand, tag_id, region
        FROM animal_profiles WHERE tenant_id=$1 AND animal_id=$2`

	row := r.pool.QueryRow(ctx, query, tenantID, animalID)
	var profile domain.AnimalProfile
	if err := row.Scan(&profile.ID, &profile.Sex, &profile.Breed, &profile.BreedClass, &profile.DateOfBirth, &profile.OwnerID, &profile.Brand, &profile.TagID, &profile.Region); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

// TransferOwnership reassigns an animal to a new owner. The only mutation a
// profile permits after registration.
func (r *Repository) TransferOwnership(ctx context.Context, tenantID, animalID, newOwnerID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE animal_profiles SET owner_id=$1 WHERE tenant_id=$2 AND animal_id=$3`,
		newOwnerID, tenantID, animalID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

// UpsertFeatureWindow stores the latest derived window for an animal. Later
// windows supersede earlier ones; the history table keeps every emission.
func (r *Repository) UpsertFeatureWindow(ctx context.Context, tenantID string, window domain.FeatureWindow) error {
	const stmt = `INSERT INTO feature_windows (tenant_id, animal_id, window_end, distance_km, time_delta_sec, geofence_dwell, anomaly_score, gap_flag, sample_count)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (tenant_id, animal_id) DO UPDATE SET
            window_end=EXCLUDED.window_end,
            distance_km=EXCLUDED.distance_km,
            time_delta_sec=EXCLUDED.time_delta_sec,
            geofence_dwell=EXCLUDED.geofence_dwell,
            anomaly_score=EXCLUDED.anomaly_score,
            gap_flag=EXCLUDED.gap_flag,
            sample_count=EXCLUDED.sample_count
        WHERE feature_windows.window_end <= EXCLUDED.window_end`

	_, err := r.pool.Exec(ctx, stmt,
		tenantID,
		window.AnimalID,
		window.WindowEnd,
		window.DistanceKm,
		window.TimeDeltaSec,
		window.GeofenceDwell,
		window.AnomalyScore,
		window.GapFlag,
		window.SampleCount,
	)
	if err != nil {
		return err
	}
	observability.RecordWindowDerived(window.WindowEnd)
	return nil
}

// LatestFeatureWindow returns the most recent derived window for an animal.
func (r *Repository) LatestFeatureWindow(ctx context.Context, tenantID, animalID string) (*domain.FeatureWindow, error) {
	const query = `SELECT animal_id, window_end, distance_km, time_delta_sec, geofence_dwell, anomaly_score, gap_flag, sample_count
        FROM feature_windows WHERE tenant_id=$1 AND animal_id=$2`

	row := r.pool.QueryRow(ctx, query, tenantID, animalID)
	var window domain.FeatureWindow
	if err := row.Scan(&window.AnimalID, &window.WindowEnd, &window.DistanceKm, &window.TimeDeltaSec, &window.GeofenceDwell, &window.AnomalyScore, &window.GapFlag, &window.SampleCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &window, nil
}

// RecordBatchRejections stores validation rejections for audit. Rejected
// records are reported, never silently dropped.
func (r *Repository) RecordBatchRejections(ctx context.Context, tenantID, batchID string, rejections []normalizer.Rejection) error {
	if len(rejections) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rej := range rejections {
		violations := make([]string, 0, len(rej.Err.Fields))
		for _, field := range rej.Err.Fields {
			violations = append(violations, field.String())
		}
		batch.Queue(
			`INSERT INTO telemetry_rejections (tenant_id, batch_id, record_index, violations) VALUES ($1,$2,$3,$4)`,
			tenantID, batchID, rej.Index, violations,
		)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range rejections {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func scanQuote(row pgx.Row) (*domain.Quote, error) {
	var quote domain.Quote
	if err := row.Scan(
		&quote.ID,
		&quote.TenantID,
		&quote.AnimalID,
		&quote.Premium,
		&quote.SumInsured,
		&quote.SegmentKey.Region,
		&quote.SegmentKey.BreedClass,
		&quote.SegmentKey.Season,
		&quote.State,
		&quote.IssuedAt,
	); err != nil {
		return nil, err
	}
	return &quote, nil
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.Quote) string
}

var eventCatalog = map[string]EventMetadata{
	"quote.issued": {
		Topic:         "quote_events",
		SchemaSubject: "quote_events-value",
		PartitionKeyFn: func(q domain.Quote) string {
			return fmt.Sprintf("%s:%s", q.TenantID, q.AnimalID)
		},
	},
	"quote.superseded": {
		Topic:         "quote_state_changed",
		SchemaSubject: "quote_state_changed-value",
		PartitionKeyFn: func(q domain.Quote) string {
			return q.ID
		},
	},
}
