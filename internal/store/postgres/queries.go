package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/copperline/beacon/internal/model"
)

func queryCreateSite(ctx context.Context, db *sql.DB, site *model.Site) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sites (id, name, api_key, created_at)
		VALUES ($1, $2, $3, $4)`,
		site.ID, site.Name, site.APIKey, site.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert site: %w", err)
	}
	return nil
}

func queryGetSite(ctx context.Context, db *sql.DB, id string) (*model.Site, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, name, api_key, created_at FROM sites WHERE id = $1`, id)

	var site model.Site
	err := row.Scan(&site.ID, &site.Name, &site.APIKey, &site.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan site: %w", err)
	}
	return &site, nil
}

func queryListSites(ctx context.Context, db *sql.DB) ([]*model.Site, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, api_key, created_at FROM sites ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	defer rows.Close()

	var sites []*model.Site
	for rows.Next() {
		var site model.Site
		if err := rows.Scan(&site.ID, &site.Name, &site.APIKey, &site.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, &site)
	}
	return sites, rows.Err()
}

// queryAppendEvent inserts the event, bumping its timestamp one microsecond
// past the site's newest record if the wall clock did not advance. The
// RETURNING clause feeds the effective timestamp back to the caller so
// readers and the push path see the stored value.
//
// Appends to one site are serialized with a transaction-scoped advisory
// lock: the MAX(ts) subselect cannot see another transaction's uncommitted
// row, so without the lock two concurrent appends could compute the same
// bumped timestamp and break the strictly-increasing order per site.
func queryAppendEvent(ctx context.Context, db *sql.DB, event *model.Event) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, event.SiteID); err != nil {
		return fmt.Errorf("lock site partition: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO events (id, site_id, event_type, collection, slug, item_id, metadata, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, GREATEST(
			$8::timestamptz,
			COALESCE((SELECT MAX(ts) + interval '1 microsecond' FROM events WHERE site_id = $2), $8::timestamptz)
		))
		RETURNING ts`,
		event.ID, event.SiteID, event.Type, event.Collection,
		nullString(event.Slug), event.ItemID, metadata, event.Timestamp,
	)
	if err := row.Scan(&event.Timestamp); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

func queryListEvents(ctx context.Context, db *sql.DB, siteID string, since time.Time, limit int) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, site_id, event_type, collection, slug, item_id, metadata, ts
		FROM events
		WHERE site_id = $1 AND ts > $2
		ORDER BY ts DESC
		LIMIT $3`,
		siteID, since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryEvictEvents(ctx context.Context, db *sql.DB, cutoff time.Time) (int, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM events WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func queryAllEvents(ctx context.Context, db *sql.DB) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, site_id, event_type, collection, slug, item_id, metadata, ts
		FROM events
		ORDER BY site_id, ts`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		var (
			ev       model.Event
			slug     sql.NullString
			metadata []byte
		)
		if err := rows.Scan(&ev.ID, &ev.SiteID, &ev.Type, &ev.Collection, &slug, &ev.ItemID, &metadata, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Slug = slug.String
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func queryUpsertItem(ctx context.Context, db *sql.DB, item *model.Item) error {
	fields, err := json.Marshal(item.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO items (site_id, item_id, slug, collection, status, title, fields, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (site_id, item_id) DO UPDATE SET
			slug = EXCLUDED.slug,
			collection = EXCLUDED.collection,
			status = EXCLUDED.status,
			title = EXCLUDED.title,
			fields = EXCLUDED.fields,
			updated_at = EXCLUDED.updated_at`,
		item.SiteID, item.ItemID, nullString(item.Slug), item.Collection,
		item.Status, item.Title, fields, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert item: %w", err)
	}
	return nil
}

func queryDeleteItem(ctx context.Context, db *sql.DB, siteID, itemID string) error {
	_, err := db.ExecContext(ctx, `
		DELETE FROM items WHERE site_id = $1 AND item_id = $2`, siteID, itemID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

func queryListItems(ctx context.Context, db *sql.DB, siteID string, limit int) ([]*model.Item, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT site_id, item_id, slug, collection, status, title, fields, updated_at
		FROM items
		WHERE site_id = $1
		ORDER BY updated_at DESC, item_id
		LIMIT $2`,
		siteID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []*model.Item
	for rows.Next() {
		var (
			it     model.Item
			slug   sql.NullString
			fields []byte
		)
		if err := rows.Scan(&it.SiteID, &it.ItemID, &slug, &it.Collection, &it.Status, &it.Title, &fields, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.Slug = slug.String
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &it.Fields); err != nil {
				return nil, fmt.Errorf("unmarshal fields: %w", err)
			}
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
