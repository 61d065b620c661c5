package payment

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/payments/chain"
	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/pkg/contracts"
)

type fakeStore struct {
	payments   map[string]*Payment
	events     []contracts.Envelope
	onComplete func(s *fakeStore, id string) (bool, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{payments: make(map[string]*Payment)}
}

func (s *fakeStore) Create(_ context.Context, p *Payment) error {
	cp := *p
	s.payments[p.ID] = &cp
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) Complete(_ context.Context, id, transactionRef string, event contracts.Envelope) (bool, error) {
	if s.onComplete != nil {
		return s.onComplete(s, id)
	}
	p, ok := s.payments[id]
	if !ok || p.Status != StatusPending {
		return false, nil
	}
	p.Status = StatusCompleted
	p.TransactionRef = transactionRef
	s.events = append(s.events, event)
	return true, nil
}

func (s *fakeStore) Fail(_ context.Context, id string) error {
	if p, ok := s.payments[id]; ok && p.Status == StatusPending {
		p.Status = StatusFailed
	}
	return nil
}

type fakeVerifier struct {
	signature   string
	findErr     error
	validateErr error
	findCalls   int
}

func (v *fakeVerifier) FindTransaction(_ context.Context, reference string) (string, error) {
	v.findCalls++
	if v.findErr != nil {
		return "", v.findErr
	}
	return v.signature, nil
}

func (v *fakeVerifier) ValidateTransfer(_ context.Context, signature, recipient string, amount int64, reference string) error {
	return v.validateErr
}

func newTestCoordinator(store Store, verifier chain.Verifier) *Coordinator {
	return NewCoordinator(store, verifier, "shopWallet", slog.New(slog.DiscardHandler))
}

func initiated(t *testing.T, c *Coordinator) *Charge {
	t.Helper()
	charge, err := c.InitiateCharge(context.Background(), ChargeRequest{
		OrderID:         "order1",
		Amount:          5000,
		RecipientWallet: "shopWallet",
	})
	require.NoError(t, err)
	return charge
}

func TestInitiateChargeValidation(t *testing.T) {
	c := newTestCoordinator(newFakeStore(), &fakeVerifier{})

	for _, req := range []ChargeRequest{
		{},
		{OrderID: "order1", Amount: 100},
		{OrderID: "order1", RecipientWallet: "w"},
		{Amount: 100, RecipientWallet: "w"},
		{OrderID: "order1", Amount: -5, RecipientWallet: "w"},
	} {
		_, err := c.InitiateCharge(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest, "%+v", req)
	}
}

func TestInitiateChargeCreatesPendingPayment(t *testing.T) {
	store := newFakeStore()
	c := newTestCoordinator(store, &fakeVerifier{})

	charge := initiated(t, c)

	assert.NotEmpty(t, charge.PaymentID)
	assert.NotEmpty(t, charge.Reference)
	assert.Contains(t, charge.PaymentURL, "solana:shopWallet")
	assert.Contains(t, charge.PaymentURL, charge.Reference)

	p := store.payments[charge.PaymentID]
	require.NotNil(t, p)
	assert.Equal(t, StatusPending, p.Status)
	assert.Equal(t, "order1", p.OrderID)
}

func TestVerifyPaymentMissingArgs(t *testing.T) {
	c := newTestCoordinator(newFakeStore(), &fakeVerifier{})

	_, err := c.VerifyPayment(context.Background(), "", "pay1")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = c.VerifyPayment(context.Background(), "ref", "")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestVerifyPaymentUnknownPayment(t *testing.T) {
	c := newTestCoordinator(newFakeStore(), &fakeVerifier{})

	_, err := c.VerifyPayment(context.Background(), "ref", "ghost")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestVerifyPaymentTransactionNotYetVisible(t *testing.T) {
	store := newFakeStore()
	c := newTestCoordinator(store, &fakeVerifier{findErr: chain.ErrTransactionNotFound})

	charge := initiated(t, c)

	_, err := c.VerifyPayment(context.Background(), charge.Reference, charge.PaymentID)
	assert.ErrorIs(t, err, chain.ErrTransactionNotFound)

	assert.Equal(t, StatusPending, store.payments[charge.PaymentID].Status, "payment stays pending until the chain catches up")
	assert.Empty(t, store.events, "no event before settlement is proven")
}

func TestVerifyPaymentValidationFailureMarksFailed(t *testing.T) {
	store := newFakeStore()
	verifier := &fakeVerifier{
		signature:   "sig1",
		validateErr: chain.ErrTransferInvalid,
	}
	c := newTestCoordinator(store, verifier)

	charge := initiated(t, c)

	_, err := c.VerifyPayment(context.Background(), charge.Reference, charge.PaymentID)
	assert.ErrorIs(t, err, chain.ErrTransferInvalid)

	assert.Equal(t, StatusFailed, store.payments[charge.PaymentID].Status)
	assert.Empty(t, store.events)
}

func TestVerifyPaymentCompletesAndPublishesOnce(t *testing.T) {
	store := newFakeStore()
	verifier := &fakeVerifier{signature: "sig1"}
	c := newTestCoordinator(store, verifier)

	charge := initiated(t, c)

	result, err := c.VerifyPayment(context.Background(), charge.Reference, charge.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "sig1", result.TransactionRef)

	require.Len(t, store.events, 1)
	assert.Equal(t, contracts.EventOrderPaid, store.events[0].EventName)

	var data contracts.OrderPaidData
	require.NoError(t, store.events[0].DecodeData(&data))
	assert.Equal(t, "order1", data.OrderID)
	assert.Equal(t, charge.PaymentID, data.PaymentID)
	assert.Equal(t, "sig1", data.TransactionRef)
}

func TestVerifyPaymentIsIdempotent(t *testing.T) {
	store := newFakeStore()
	verifier := &fakeVerifier{signature: "sig1"}
	c := newTestCoordinator(store, verifier)

	charge := initiated(t, c)

	first, err := c.VerifyPayment(context.Background(), charge.Reference, charge.PaymentID)
	require.NoError(t, err)
	second, err := c.VerifyPayment(context.Background(), charge.Reference, charge.PaymentID)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, first.Status)
	assert.Equal(t, StatusCompleted, second.Status)
	assert.Equal(t, first.TransactionRef, second.TransactionRef)

	assert.Len(t, store.events, 1, "OrderPaid must be published at most once")
	assert.Equal(t, 1, verifier.findCalls, "completed payments skip the chain entirely")
}

func TestVerifyPaymentLostRaceReportsWinner(t *testing.T) {
	store := newFakeStore()
	verifier := &fakeVerifier{signature: "sig1"}
	c := newTestCoordinator(store, verifier)

	charge := initiated(t, c)

	// A concurrent verification settles the payment between this call's
	// Get and Complete.
	store.onComplete = func(s *fakeStore, id string) (bool, error) {
		s.payments[id].Status = StatusCompleted
		s.payments[id].TransactionRef = "sigOther"
		return false, nil
	}

	result, err := c.VerifyPayment(context.Background(), charge.Reference, charge.PaymentID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "sigOther", result.TransactionRef)
	assert.Empty(t, store.events)
}

func TestVerifyPaymentTransientChainError(t *testing.T) {
	store := newFakeStore()
	chainErr := errors.New("indexer returned 503")
	c := newTestCoordinator(store, &fakeVerifier{findErr: chainErr})

	charge := initiated(t, c)

	_, err := c.VerifyPayment(context.Background(), charge.Reference, charge.PaymentID)
	assert.ErrorIs(t, err, chainErr)
	assert.Equal(t, StatusPending, store.payments[charge.PaymentID].Status, "transient chain errors must not fail the payment")
}
