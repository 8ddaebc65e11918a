package services

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockPayoutRail struct {
	mock.Mock
}

func (m *MockPayoutRail) Transfer(ctx context.Context, instr PayoutInstruction) (*RailConfirmation, error) {
	args := m.Called(ctx, instr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RailConfirmation), args.Error(1)
}

func (m *MockPayoutRail) Provider() string {
	return "iso20022"
}
