package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/benmeehan/trailsafe/internal/models"
)

// MockDeviceStore is a mock implementation of the DeviceStore interface
type MockDeviceStore struct {
	mock.Mock
}

func (m *MockDeviceStore) Save(ctx context.Context, rec models.DeviceRecord) (models.DeviceRecord, error) {
	args := m.Called(ctx, rec)
	saved, _ := args.Get(0).(models.DeviceRecord)
	return saved, args.Error(1)
}

func (m *MockDeviceStore) Get(ctx context.Context, userID, deviceID string) (models.DeviceRecord, error) {
	args := m.Called(ctx, userID, deviceID)
	rec, _ := args.Get(0).(models.DeviceRecord)
	return rec, args.Error(1)
}

func (m *MockDeviceStore) List(ctx context.Context, userID string) ([]models.DeviceRecord, error) {
	args := m.Called(ctx, userID)
	recs, _ := args.Get(0).([]models.DeviceRecord)
	return recs, args.Error(1)
}

func (m *MockDeviceStore) Delete(ctx context.Context, userID, deviceID string) error {
	args := m.Called(ctx, userID, deviceID)
	return args.Error(0)
}

func (m *MockDeviceStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
