package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/optsync/dbopen"
)

// Schema holds one row per allow-listed product. The option definitions are
// stored as the JSON encoding of Product so the editing tool and the engine
// share one format.
const Schema = `
CREATE TABLE IF NOT EXISTS catalog_products (
	id          INTEGER PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	base_price  REAL NOT NULL,
	config      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'active',
	updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS catalog_settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// LoadDB reads every active product from the database and returns a
// validated catalog.
func LoadDB(ctx context.Context, db *sql.DB) (*Catalog, error) {
	c := &Catalog{}

	var currency sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT value FROM catalog_settings WHERE key = 'currency'`).Scan(&currency)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("catalog: load settings: %w", err)
	}
	c.Currency = currency.String

	rows, err := db.QueryContext(ctx, `
		SELECT id, name, base_price, config
		FROM catalog_products
		WHERE status = 'active'
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("catalog: load products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p          Product
			id         int64
			name, config string
			base       float64
		)
		if err := rows.Scan(&id, &name, &base, &config); err != nil {
			return nil, fmt.Errorf("catalog: scan product: %w", err)
		}
		if err := json.Unmarshal([]byte(config), &p); err != nil {
			return nil, fmt.Errorf("catalog: product %d: decode config: %w", id, err)
		}
		// Columns win over the config so price edits need no JSON rewrite.
		p.ID, p.Name, p.BasePrice = id, name, base
		c.Products = append(c.Products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: load products: %w", err)
	}

	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// SaveDB upserts every product of c and its currency in one transaction.
func SaveDB(ctx context.Context, db *sql.DB, c *Catalog) error {
	if err := c.Validate(); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	return dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO catalog_settings (key, value) VALUES ('currency', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, c.Currency); err != nil {
			return fmt.Errorf("catalog: save currency: %w", err)
		}
		for i := range c.Products {
			p := &c.Products[i]
			config, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("catalog: product %d: encode config: %w", p.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO catalog_products (id, name, base_price, config, status, updated_at)
				VALUES (?, ?, ?, ?, 'active', ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					base_price = excluded.base_price,
					config = excluded.config,
					status = 'active',
					updated_at = excluded.updated_at`,
				p.ID, p.Name, p.BasePrice, string(config), now); err != nil {
				return fmt.Errorf("catalog: save product %d: %w", p.ID, err)
			}
		}
		return nil
	})
}

// Disable removes a product from the allow-list without deleting its config.
func Disable(ctx context.Context, db *sql.DB, id int64) error {
	res, err := db.ExecContext(ctx,
		`UPDATE catalog_products SET status = 'disabled', updated_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("catalog: disable %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrUnknownProduct, id)
	}
	return nil
}
