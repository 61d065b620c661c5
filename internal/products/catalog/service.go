// Package catalog is the storefront-facing product surface. Stock
// counters shown here are maintained by the inventory consumer; the only
// write path into them from HTTP is the explicit restock operation.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidRestock  = errors.New("restock would drive stock negative")
)

type Product struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Price          int64     `json:"price"`
	ImageURL       string    `json:"imageUrl"`
	WalletAddress  string    `json:"walletAddress"`
	Stock          int       `json:"stock"`
	PreservedStock int       `json:"preservedStock"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

func (s *Service) List(ctx context.Context) ([]Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, price, image_url, wallet_address,
		       stock, preserved_stock, created_at, updated_at
		FROM products
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var result []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.ImageURL,
			&p.WalletAddress, &p.Stock, &p.PreservedStock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, description, price, image_url, wallet_address,
		       stock, preserved_stock, created_at, updated_at
		FROM products
		WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.ImageURL,
		&p.WalletAddress, &p.Stock, &p.PreservedStock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

type ProductInput struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Price         int64  `json:"price"`
	ImageURL      string `json:"imageUrl"`
	WalletAddress string `json:"walletAddress"`
	Stock         int    `json:"stock"`
}

func (s *Service) Create(ctx context.Context, in ProductInput) (*Product, error) {
	if in.Name == "" || in.Price <= 0 || in.Stock < 0 {
		return nil, fmt.Errorf("name, positive price and non-negative stock are required")
	}

	now := time.Now().UTC()
	p := Product{
		ID:            uuid.NewString(),
		Name:          in.Name,
		Description:   in.Description,
		Price:         in.Price,
		ImageURL:      in.ImageURL,
		WalletAddress: in.WalletAddress,
		Stock:         in.Stock,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (id, name, description, price, image_url, wallet_address,
		                      stock, preserved_stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $8)`,
		p.ID, p.Name, p.Description, p.Price, p.ImageURL, p.WalletAddress, p.Stock, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	return &p, nil
}

// Update changes descriptive fields only. Stock moves exclusively
// through Restock and the saga consumer.
func (s *Service) Update(ctx context.Context, id string, in ProductInput) (*Product, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE products
		SET name = $2, description = $3, price = $4, image_url = $5,
		    wallet_address = $6, updated_at = NOW()
		WHERE id = $1`,
		id, in.Name, in.Description, in.Price, in.ImageURL, in.WalletAddress,
	)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrProductNotFound
	}
	return s.Get(ctx, id)
}

// Restock adjusts available stock by delta as a single atomic update.
// Negative deltas (shrink inventory) are allowed down to zero.
func (s *Service) Restock(ctx context.Context, id string, delta int) (*Product, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1 AND stock + $2 >= 0`,
		id, delta,
	)
	if err != nil {
		return nil, fmt.Errorf("restock product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, id); errors.Is(getErr, ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, ErrInvalidRestock
	}
	return s.Get(ctx, id)
}
