// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"image"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

// -- Device Mocks --

// MockMouse mocks schemas.Mouse.
type MockMouse struct {
	mock.Mock
}

func (m *MockMouse) Move(ctx context.Context, x, y int) error {
	args := m.Called(ctx, x, y)
	return args.Error(0)
}

func (m *MockMouse) Click(ctx context.Context, button schemas.MouseButton) error {
	args := m.Called(ctx, button)
	return args.Error(0)
}

// MockKeyboard mocks schemas.Keyboard.
type MockKeyboard struct {
	mock.Mock
}

func (m *MockKeyboard) Press(ctx context.Context, key schemas.Key) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockKeyboard) Type(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}

func (m *MockKeyboard) Down(ctx context.Context, key schemas.Key) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockKeyboard) Up(ctx context.Context, key schemas.Key) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockDeviceState mocks schemas.DeviceState.
type MockDeviceState struct {
	mock.Mock
}

func (m *MockDeviceState) Save(ctx context.Context) (schemas.SnapshotToken, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.SnapshotToken), args.Error(1)
}

func (m *MockDeviceState) Restore(ctx context.Context, token schemas.SnapshotToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockDeviceState) Discard(ctx context.Context, token schemas.SnapshotToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

// MockController bundles the device mocks behind schemas.Controller.
type MockController struct {
	MouseMock    *MockMouse
	KeyboardMock *MockKeyboard
	StateMock    *MockDeviceState
}

// NewMockController creates a controller with fresh mocks.
func NewMockController() *MockController {
	return &MockController{
		MouseMock:    new(MockMouse),
		KeyboardMock: new(MockKeyboard),
		StateMock:    new(MockDeviceState),
	}
}

func (c *MockController) Mouse() schemas.Mouse       { return c.MouseMock }
func (c *MockController) Keyboard() schemas.Keyboard { return c.KeyboardMock }
func (c *MockController) State() schemas.DeviceState { return c.StateMock }

// AssertExpectations asserts all wrapped mocks.
func (c *MockController) AssertExpectations(t mock.TestingT) bool {
	return c.MouseMock.AssertExpectations(t) &&
		c.KeyboardMock.AssertExpectations(t) &&
		c.StateMock.AssertExpectations(t)
}

// -- Feedback Mocks --

// MockFeedback mocks schemas.Feedback.
type MockFeedback struct {
	mock.Mock
}

func (m *MockFeedback) Screenshot(ctx context.Context) (image.Image, error) {
	args := m.Called(ctx)
	img, _ := args.Get(0).(image.Image)
	return img, args.Error(1)
}

func (m *MockFeedback) Load(ctx context.Context) (schemas.Load, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.Load), args.Error(1)
}

// MockWindowScraper mocks schemas.WindowScraper.
type MockWindowScraper struct {
	mock.Mock
}

func (m *MockWindowScraper) ScrapeWindow(ctx context.Context) (schemas.ScrapedWindow, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.ScrapedWindow), args.Error(1)
}
