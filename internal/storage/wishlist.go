package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Wishlist status values. The wishlist itself lives outside this core; the
// one coupling that matters here is flipping a purchased item back to
// pending when the transaction that funded it is deleted.
const (
	WishlistPending   = "pending"
	WishlistPurchased = "purchased"
)

// WishlistItem is the minimal shape the ledger core needs.
type WishlistItem struct {
	ID            string `db:"id"`
	OwnerID       string `db:"owner_id"`
	Name          string `db:"name"`
	PriceCents    int64  `db:"price_cents"`
	Currency      string `db:"currency"`
	Status        string `db:"status"`
	TransactionID string `db:"transaction_id"`
}

func (s *Store) InsertWishlistItem(ctx context.Context, item WishlistItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wishlist_items (id, owner_id, name, price_cents, currency, status, transaction_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.OwnerID, item.Name, item.PriceCents, item.Currency, item.Status, item.TransactionID)
	if err != nil {
		return fmt.Errorf("insert wishlist item: %w", err)
	}
	return nil
}

// ReleaseWishlistPurchase flips any item funded by the given transaction
// back to pending and detaches the transaction. Returns how many items
// were released (normally zero or one).
func (s *Store) ReleaseWishlistPurchase(ctx context.Context, q sqlx.ExtContext, transactionID string) (int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE wishlist_items SET status = ?, transaction_id = ''
		WHERE transaction_id = ? AND status = ?`,
		WishlistPending, transactionID, WishlistPurchased)
	if err != nil {
		return 0, fmt.Errorf("release wishlist purchase: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) GetWishlistItem(ctx context.Context, id string) (WishlistItem, error) {
	var item WishlistItem
	err := sqlx.GetContext(ctx, s.db, &item, `SELECT * FROM wishlist_items WHERE id = ?`, id)
	if err != nil {
		return WishlistItem{}, fmt.Errorf("get wishlist item: %w", err)
	}
	return item, nil
}
