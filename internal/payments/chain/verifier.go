// Package chain is the boundary to on-chain settlement state. The chain
// is an opaque, eventually-consistent oracle: a transaction that is not
// found yet is an expected condition, not a failure.
package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrTransactionNotFound means no transaction carrying the reference
	// is visible yet. Callers retry later.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrTransferInvalid means a transaction exists but does not move
	// the expected amount to the expected recipient.
	ErrTransferInvalid = errors.New("transfer validation failed")
)

type Verifier interface {
	// FindTransaction resolves a payment reference to the signature of
	// the transaction that embeds it.
	FindTransaction(ctx context.Context, reference string) (string, error)

	// ValidateTransfer checks that the transaction transfers at least
	// amount to recipient and carries reference.
	ValidateTransfer(ctx context.Context, signature, recipient string, amount int64, reference string) error
}

// IndexerVerifier talks to a chain-indexer gateway over HTTP.
type IndexerVerifier struct {
	client *resty.Client
}

func NewIndexerVerifier(baseURL string) *IndexerVerifier {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second)
	return &IndexerVerifier{client: client}
}

func (v *IndexerVerifier) FindTransaction(ctx context.Context, reference string) (string, error) {
	var result struct {
		Signature string `json:"signature"`
	}

	resp, err := v.client.R().
		SetContext(ctx).
		SetQueryParam("reference", reference).
		SetResult(&result).
		Get("/v1/transactions/search")
	if err != nil {
		return "", fmt.Errorf("chain indexer: %w", err)
	}

	switch {
	case resp.StatusCode() == 404:
		return "", ErrTransactionNotFound
	case resp.IsError():
		return "", fmt.Errorf("chain indexer returned %s", resp.Status())
	}

	if result.Signature == "" {
		return "", ErrTransactionNotFound
	}
	return result.Signature, nil
}

func (v *IndexerVerifier) ValidateTransfer(ctx context.Context, signature, recipient string, amount int64, reference string) error {
	body := map[string]any{
		"signature": signature,
		"recipient": recipient,
		"amount":    amount,
		"reference": reference,
	}

	resp, err := v.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/v1/transfers/validate")
	if err != nil {
		return fmt.Errorf("chain indexer: %w", err)
	}

	switch {
	case resp.StatusCode() == 404:
		return ErrTransactionNotFound
	case resp.StatusCode() == 422:
		return fmt.Errorf("%w: %s", ErrTransferInvalid, resp.String())
	case resp.IsError():
		return fmt.Errorf("chain indexer returned %s", resp.Status())
	}
	return nil
}
