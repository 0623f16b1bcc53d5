package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/benmeehan/trailsafe/pkg/identity"
)

// MockUserInfo is a mock implementation of the UserInfoInterface
type MockUserInfo struct {
	mock.Mock
}

func (m *MockUserInfo) LoadUserInfo() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUserInfo) SaveIdentity(id identity.Identity) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockUserInfo) GetUserID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockUserInfo) GetIdentity() *identity.Identity {
	args := m.Called()
	id, _ := args.Get(0).(*identity.Identity)
	return id
}
