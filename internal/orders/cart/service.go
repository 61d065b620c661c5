package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrItemNotFound = errors.New("cart item not found")
	ErrInvalidItem  = errors.New("missing productId, name, price or quantity")
)

// Item is one line of a user's cart. WalletAddress is the settlement
// destination of the product's seller; order placement groups lines by
// it.
type Item struct {
	ProductID     string    `json:"productId"`
	Name          string    `json:"name"`
	Price         int64     `json:"price"`
	Quantity      int       `json:"quantity"`
	WalletAddress string    `json:"walletAddress"`
	AddedAt       time.Time `json:"addedAt"`
}

type Cart struct {
	UserID string `json:"userId"`
	Items  []Item `json:"items"`
	Total  int64  `json:"total"`
}

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT product_id, name, price, quantity, wallet_address, added_at
		FROM cart_items
		WHERE user_id = $1
		ORDER BY added_at`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	c := &Cart{UserID: userID, Items: []Item{}}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Price, &item.Quantity, &item.WalletAddress, &item.AddedAt); err != nil {
			return nil, err
		}
		c.Items = append(c.Items, item)
		c.Total += item.Price * int64(item.Quantity)
	}
	return c, rows.Err()
}

// Add puts an item in the cart, merging quantities when the product is
// already there. The snapshot fields (name, price, wallet) are refreshed
// on merge so the cart reflects the latest add.
func (s *Service) Add(ctx context.Context, userID string, item Item) error {
	if item.ProductID == "" || item.Name == "" || item.Price <= 0 || item.Quantity <= 0 {
		return ErrInvalidItem
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO cart_items (user_id, product_id, name, price, quantity, wallet_address)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, product_id) DO UPDATE
		SET quantity = cart_items.quantity + EXCLUDED.quantity,
		    name = EXCLUDED.name,
		    price = EXCLUDED.price,
		    wallet_address = EXCLUDED.wallet_address`,
		userID, item.ProductID, item.Name, item.Price, item.Quantity, item.WalletAddress,
	)
	if err != nil {
		return fmt.Errorf("add cart item: %w", err)
	}
	return nil
}

func (s *Service) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) error {
	if quantity <= 0 {
		return s.Remove(ctx, userID, productID)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE cart_items
		SET quantity = $3
		WHERE user_id = $1 AND product_id = $2`,
		userID, productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("update cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (s *Service) Remove(ctx context.Context, userID, productID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM cart_items
		WHERE user_id = $1 AND product_id = $2`,
		userID, productID,
	)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}
