package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// DefaultCurrency is the favorite currency assumed for owners who never
// picked one.
const DefaultCurrency = "USD"

// FavoriteCurrency returns the owner's display currency, falling back to
// DefaultCurrency when no settings row exists.
func (s *Store) FavoriteCurrency(ctx context.Context, q sqlx.ExtContext, ownerID string) (string, error) {
	var currency string
	err := sqlx.GetContext(ctx, q, &currency, `
		SELECT favorite_currency FROM user_settings WHERE owner_id = ?`, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DefaultCurrency, nil
		}
		return "", fmt.Errorf("get favorite currency: %w", err)
	}
	return currency, nil
}

func (s *Store) SetFavoriteCurrency(ctx context.Context, ownerID, currency string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_settings (owner_id, favorite_currency) VALUES (?, ?)
		ON CONFLICT (owner_id) DO UPDATE SET favorite_currency = excluded.favorite_currency`,
		ownerID, currency)
	if err != nil {
		return fmt.Errorf("set favorite currency: %w", err)
	}
	return nil
}
