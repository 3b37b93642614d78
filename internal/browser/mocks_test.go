// internal/browser/mocks_test.go
package browser

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/webpilot/internal/action"
)

// mockSurface is a testify mock of Surface.
type mockSurface struct {
	mock.Mock
}

var _ Surface = (*mockSurface)(nil)

func (m *mockSurface) Start(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockSurface) Stop(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockSurface) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSurface) MoveTo(ctx context.Context, x, y float64) error {
	return m.Called(ctx, x, y).Error(0)
}

func (m *mockSurface) ClickAt(ctx context.Context, x, y float64, button action.Button, count int) error {
	return m.Called(ctx, x, y, button, count).Error(0)
}

func (m *mockSurface) DragTo(ctx context.Context, x, y float64, steps int) error {
	return m.Called(ctx, x, y, steps).Error(0)
}

func (m *mockSurface) TypeText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *mockSurface) PressKey(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockSurface) WheelScroll(ctx context.Context, dx, dy float64) error {
	return m.Called(ctx, dx, dy).Error(0)
}

func (m *mockSurface) GotoURL(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}
