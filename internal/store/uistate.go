package store

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
)

// ReadCounts, HiddenDestinations and BlockedTexts implement the persistent
// UI-state CRUD surface of spec.md §3/§4.5.

func (s *Store) GetReadCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT dst, count FROM read_counts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var dst string
		var count int
		if err := rows.Scan(&dst, &count); err != nil {
			return nil, err
		}
		out[dst] = count
	}
	return out, rows.Err()
}

func (s *Store) SetReadCount(ctx context.Context, dst string, count int) error {
	return s.writer.submit(ctx, "set_read_count", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO read_counts (dst, count) VALUES (?, ?)
			 ON CONFLICT(dst) DO UPDATE SET count = excluded.count`, dst, count)
		return err
	})
}

func (s *Store) ReplaceReadCounts(ctx context.Context, counts map[string]int) error {
	return s.writer.submit(ctx, "replace_read_counts", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM read_counts`); err != nil {
			return err
		}
		for dst, count := range counts {
			if _, err := tx.ExecContext(ctx, `INSERT INTO read_counts (dst, count) VALUES (?, ?)`, dst, count); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetHiddenDestinations(ctx context.Context) ([]string, error) {
	var out []string
	err := s.readDB.SelectContext(ctx, &out, `SELECT dst FROM hidden_destinations`)
	return out, err
}

func (s *Store) ReplaceHiddenDestinations(ctx context.Context, dsts []string) error {
	return s.writer.submit(ctx, "replace_hidden_destinations", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM hidden_destinations`); err != nil {
			return err
		}
		for _, dst := range dsts {
			if _, err := tx.ExecContext(ctx, `INSERT INTO hidden_destinations (dst) VALUES (?)`, dst); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetBlockedTexts(ctx context.Context) ([]string, error) {
	var out []string
	err := s.readDB.SelectContext(ctx, &out, `SELECT pattern FROM blocked_texts`)
	return out, err
}

func (s *Store) ReplaceBlockedTexts(ctx context.Context, patterns []string) error {
	return s.writer.submit(ctx, "replace_blocked_texts", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM blocked_texts`); err != nil {
			return err
		}
		for _, p := range patterns {
			if _, err := tx.ExecContext(ctx, `INSERT INTO blocked_texts (pattern) VALUES (?)`, p); err != nil {
				return err
			}
		}
		return nil
	})
}

// SidebarOrder is the ordered + hidden list pair for the mheard/wx sidebars.
type SidebarOrder struct {
	Order  []string `json:"order"`
	Hidden []string `json:"hidden"`
}

func (s *Store) GetSidebarOrder(ctx context.Context, kind string) (SidebarOrder, error) {
	var orderJSON, hiddenJSON string
	err := s.readDB.QueryRowContext(ctx,
		`SELECT order_json, hidden_json FROM sidebar_orders WHERE kind = ?`, kind).
		Scan(&orderJSON, &hiddenJSON)
	if err != nil {
		return SidebarOrder{}, nil
	}
	var out SidebarOrder
	json.Unmarshal([]byte(orderJSON), &out.Order)
	json.Unmarshal([]byte(hiddenJSON), &out.Hidden)
	return out, nil
}

func (s *Store) SetSidebarOrder(ctx context.Context, kind string, order SidebarOrder) error {
	orderJSON, _ := json.Marshal(order.Order)
	hiddenJSON, _ := json.Marshal(order.Hidden)
	return s.writer.submit(ctx, "set_sidebar_order", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sidebar_orders (kind, order_json, hidden_json) VALUES (?, ?, ?)
			 ON CONFLICT(kind) DO UPDATE SET order_json = excluded.order_json, hidden_json = excluded.hidden_json`,
			kind, string(orderJSON), string(hiddenJSON))
		return err
	})
}
