package wallet

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) InitializeCharge(ctx context.Context, email, reference string, amount decimal.Decimal, callbackURL string) (*ChargeAuthorization, error) {
	args := m.Called(ctx, email, reference, amount, callbackURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ChargeAuthorization), args.Error(1)
}

func (m *MockProvider) VerifyCharge(ctx context.Context, reference string) (*ChargeVerification, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ChargeVerification), args.Error(1)
}

func (m *MockProvider) InitiateTransfer(ctx context.Context, req *TransferRequest) (*TransferResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TransferResult), args.Error(1)
}

func (m *MockProvider) ResolveAccount(ctx context.Context, bankCode, accountNumber string) (string, error) {
	args := m.Called(ctx, bankCode, accountNumber)
	return args.String(0), args.Error(1)
}

type MockPinVerifier struct {
	mock.Mock
}

func (m *MockPinVerifier) VerifyPin(ctx context.Context, userID int64, pin string) error {
	args := m.Called(ctx, userID, pin)
	return args.Error(0)
}

type MockLimitStore struct {
	mock.Mock
}

func (m *MockLimitStore) CheckDailyLimit(ctx context.Context, userID int64, amount decimal.Decimal, category LimitCategory) (*LimitCheck, error) {
	args := m.Called(ctx, userID, amount, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*LimitCheck), args.Error(1)
}

func (m *MockLimitStore) IncrementDailySpend(ctx context.Context, userID int64, amount decimal.Decimal, category LimitCategory) error {
	args := m.Called(ctx, userID, amount, category)
	return args.Error(0)
}

func allowAll() *LimitCheck {
	return &LimitCheck{CanProceed: true, Unlimited: true}
}

func allowWithin(limit, spent int64) *LimitCheck {
	l := decimal.NewFromInt(limit)
	s := decimal.NewFromInt(spent)
	return &LimitCheck{CanProceed: true, Limit: l, Spent: s, Remaining: l.Sub(s)}
}

func denyAt(limit, spent int64) *LimitCheck {
	l := decimal.NewFromInt(limit)
	s := decimal.NewFromInt(spent)
	remaining := l.Sub(s)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return &LimitCheck{CanProceed: false, Limit: l, Spent: s, Remaining: remaining}
}
