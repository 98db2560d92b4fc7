package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wallera-computer/tagateway/protocol"
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

const testSessionCtx = "session-ctx"

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func waitDone(t *testing.T, w *Worker) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit")
	}
}

func TestWorker_InvokeReturnsOutputs(t *testing.T) {
	app := &mockApp{}
	app.On("InvokeCommand", uint32(7), mock.Anything, testSessionCtx).
		Run(func(args mock.Arguments) {
			p := args.Get(1).(*protocol.Parameters)
			p[1] = protocol.NewValue(protocol.ParamValueOutput, p[0].Value.A+p[0].Value.B, 0)
		}).
		Return(nil)

	w := Spawn(1, app, testSessionCtx, zap.NewNop())

	in := protocol.Parameters{
		protocol.NewValue(protocol.ParamValueInput, 3, 4),
		protocol.NewValue(protocol.ParamValueOutput, 0, 0),
	}

	r, err := w.Invoke(testContext(t), 7, in)
	require.NoError(t, err)
	require.Equal(t, uint32(ta.Success), r.Status)
	require.Equal(t, uint32(7), r.Params[1].Value.A)

	// the caller's copy is untouched
	require.Equal(t, uint32(0), in[1].Value.A)

	app.AssertExpectations(t)
}

func TestWorker_InvokeErrorBecomesStatus(t *testing.T) {
	app := &mockApp{}
	app.On("InvokeCommand", uint32(2), mock.Anything, testSessionCtx).
		Return(ta.Errorf(ta.BadParameters, "wrong slot types"))

	w := Spawn(1, app, testSessionCtx, zap.NewNop())

	params := protocol.Parameters{protocol.NewMemref(protocol.ParamMemrefInput, []byte{1, 2})}
	r, err := w.Invoke(testContext(t), 2, params)
	require.NoError(t, err)
	require.Equal(t, uint32(ta.BadParameters), r.Status)
	require.Equal(t, params, r.Params)
}

func TestWorker_PanicIsCaptured(t *testing.T) {
	app := &mockApp{}
	app.On("InvokeCommand", uint32(1), mock.Anything, testSessionCtx).Panic("index out of range")
	app.On("InvokeCommand", uint32(2), mock.Anything, testSessionCtx).Return(nil)

	w := Spawn(1, app, testSessionCtx, zap.NewNop())

	r, err := w.Invoke(testContext(t), 1, protocol.Parameters{})
	require.NoError(t, err)
	require.Equal(t, uint32(ta.TargetDead), r.Status)

	r, err = w.Invoke(testContext(t), 2, protocol.Parameters{})
	require.NoError(t, err)
	require.Equal(t, uint32(ta.Success), r.Status)
}

func TestWorker_CloseTerminates(t *testing.T) {
	app := &mockApp{}
	app.On("CloseSession", testSessionCtx).Return(nil).Once()

	w := Spawn(3, app, testSessionCtx, zap.NewNop())

	r, err := w.Close(testContext(t))
	require.NoError(t, err)
	require.Equal(t, uint32(ta.Success), r.Status)

	waitDone(t, w)

	_, err = w.Invoke(testContext(t), 1, protocol.Parameters{})
	require.ErrorIs(t, err, ErrWorkerClosed)

	_, err = w.Close(testContext(t))
	require.ErrorIs(t, err, ErrWorkerClosed)

	app.AssertExpectations(t)
	app.AssertNotCalled(t, "InvokeCommand", mock.Anything, mock.Anything, mock.Anything)
}

func TestWorker_CloseErrorIsReported(t *testing.T) {
	app := &mockApp{}
	app.On("CloseSession", testSessionCtx).Return(ta.Errorf(ta.BadState, "still signing"))

	w := Spawn(3, app, testSessionCtx, zap.NewNop())

	r, err := w.Close(testContext(t))
	require.NoError(t, err)
	require.Equal(t, uint32(ta.BadState), r.Status)
	waitDone(t, w)
}

func TestWorker_ProcessesRequestsInPostOrder(t *testing.T) {
	release := make(chan struct{})
	var observed []uint32

	app := &mockApp{}
	app.On("InvokeCommand", mock.Anything, mock.Anything, testSessionCtx).
		Run(func(args mock.Arguments) {
			cmd := args.Get(0).(uint32)
			if cmd == 1 {
				<-release
			}
			observed = append(observed, cmd)

			p := args.Get(1).(*protocol.Parameters)
			p[0] = protocol.NewValue(protocol.ParamValueOutput, cmd, uint32(len(observed)))
		}).
		Return(nil)

	w := Spawn(1, app, testSessionCtx, zap.NewNop())
	ctx := testContext(t)

	first, err := w.Post(ctx, InvokeRequest(1, protocol.Parameters{}))
	require.NoError(t, err)
	second, err := w.Post(ctx, InvokeRequest(2, protocol.Parameters{}))
	require.NoError(t, err)

	close(release)

	r1 := <-first
	r2 := <-second

	require.Equal(t, []uint32{1, 2}, observed)
	require.Equal(t, protocol.Value{A: 1, B: 1}, r1.Params[0].Value)
	require.Equal(t, protocol.Value{A: 2, B: 2}, r2.Params[0].Value)
}

func TestWorker_RequestsQueuedBehindCloseAreRejected(t *testing.T) {
	release := make(chan struct{})

	app := &mockApp{}
	app.On("CloseSession", testSessionCtx).Run(func(mock.Arguments) { <-release }).Return(nil)

	w := Spawn(1, app, testSessionCtx, zap.NewNop())
	ctx := testContext(t)

	closeCh, err := w.Post(ctx, CloseRequest())
	require.NoError(t, err)

	params := protocol.Parameters{protocol.NewValue(protocol.ParamValueInput, 9, 9)}
	lateCh, err := w.Post(ctx, InvokeRequest(5, params))
	require.NoError(t, err)

	close(release)

	require.Equal(t, uint32(ta.Success), (<-closeCh).Status)

	late := <-lateCh
	require.Equal(t, uint32(ta.ItemNotFound), late.Status)
	require.Equal(t, params, late.Params)
	app.AssertNotCalled(t, "InvokeCommand", mock.Anything, mock.Anything, mock.Anything)
}

func TestWorker_CallHonoursContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	app := &mockApp{}
	app.On("InvokeCommand", uint32(1), mock.Anything, testSessionCtx).
		Run(func(mock.Arguments) { <-release }).
		Return(nil)

	w := Spawn(1, app, testSessionCtx, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := w.Invoke(ctx, 1, protocol.Parameters{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

type nopApp struct{}

func (nopApp) Create() error { return nil }

func (nopApp) OpenSession(*protocol.Parameters) (ta.SessionContext, error) { return nil, nil }

func (nopApp) CloseSession(ta.SessionContext) error { return nil }

func (nopApp) InvokeCommand(uint32, *protocol.Parameters, ta.SessionContext) error { return nil }

func (nopApp) Destroy() error { return nil }

func TestWorker_PostRacingCloseAlwaysGetsAnswered(t *testing.T) {
	for i := 0; i < 2000; i++ {
		w := Spawn(uint32(i+1), nopApp{}, nil, zap.NewNop())
		ctx := testContext(t)

		closed := make(chan error, 1)
		go func() {
			_, err := w.Close(ctx)
			closed <- err
		}()

		r, err := w.Invoke(ctx, 1, protocol.Parameters{})
		if err != nil {
			require.ErrorIs(t, err, ErrWorkerClosed)
		} else {
			require.Contains(t, []uint32{uint32(ta.Success), uint32(ta.ItemNotFound)}, r.Status)
		}

		require.NoError(t, <-closed)
		waitDone(t, w)
	}
}

func TestWorker_DrainAnswersLeftoverRequests(t *testing.T) {
	w := &Worker{
		inbox: make(chan Request, inboxDepth),
		done:  make(chan struct{}),
		l:     zap.NewNop(),
	}
	close(w.done)

	params := protocol.Parameters{protocol.NewValue(protocol.ParamValueInput, 1, 2)}
	req := InvokeRequest(4, params)
	req.reply = make(chan Reply, 1)
	w.inbox <- req

	w.drain()

	require.Equal(t, Reply{Status: uint32(ta.ItemNotFound), Params: params}, <-req.reply)
	require.Empty(t, w.inbox)
}
