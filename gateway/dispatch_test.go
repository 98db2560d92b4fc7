package gateway

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wallera-computer/tagateway/protocol"
	"github.com/wallera-computer/tagateway/session"
	"github.com/wallera-computer/tagateway/ta"
)

type mockApp struct {
	mock.Mock
}

func (m *mockApp) Create() error {
	return m.Called().Error(0)
}

func (m *mockApp) OpenSession(params *protocol.Parameters) (ta.SessionContext, error) {
	args := m.Called(params)
	return args.Get(0), args.Error(1)
}

func (m *mockApp) CloseSession(ctx ta.SessionContext) error {
	return m.Called(ctx).Error(0)
}

func (m *mockApp) InvokeCommand(cmdID uint32, params *protocol.Parameters, ctx ta.SessionContext) error {
	return m.Called(cmdID, params, ctx).Error(0)
}

func (m *mockApp) Destroy() error {
	return m.Called().Error(0)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGateway_openSessionIDsExhausted(t *testing.T) {
	app := &mockApp{}
	app.On("OpenSession", mock.Anything).Return("last-ctx", nil).Once()
	app.On("CloseSession", "last-ctx").Return(nil).Once()

	g := New(Config{UUID: "8aaaf200-2450-11e4-abe2-0002a5d5c51b"}, app, zaptest.NewLogger(t))
	g.sessions = session.NewRegistryAfter(math.MaxUint32)

	resp, done := g.dispatch(testContext(t), &protocol.OpenSession{ConnectionMethod: protocol.LoginPublic})
	require.False(t, done)
	require.Equal(t, &protocol.OpenSessionResult{Status: uint32(ta.Overflow)}, resp)

	require.Zero(t, g.sessions.Len())
	app.AssertExpectations(t)
	app.AssertNumberOfCalls(t, "CloseSession", 1)
}

func TestGateway_openSessionLastID(t *testing.T) {
	app := &mockApp{}
	app.On("OpenSession", mock.Anything).Return("ctx", nil)
	app.On("CloseSession", "ctx").Return(nil)

	g := New(Config{}, app, zaptest.NewLogger(t))
	g.sessions = session.NewRegistryAfter(math.MaxUint32 - 1)

	resp, _ := g.dispatch(testContext(t), &protocol.OpenSession{})
	require.Equal(t, &protocol.OpenSessionResult{Status: uint32(ta.Success), SessionID: math.MaxUint32}, resp)
	require.Equal(t, 1, g.sessions.Len())

	resp, _ = g.dispatch(testContext(t), &protocol.OpenSession{})
	require.Equal(t, &protocol.OpenSessionResult{Status: uint32(ta.Overflow)}, resp)
	require.Equal(t, 1, g.sessions.Len())

	resp, _ = g.dispatch(testContext(t), &protocol.CloseSession{SessionID: math.MaxUint32})
	require.Equal(t, &protocol.CloseSessionResult{Status: uint32(ta.Success), SessionID: math.MaxUint32}, resp)
	require.Zero(t, g.sessions.Len())

	app.AssertNumberOfCalls(t, "CloseSession", 2)
}
