package watch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldermoor/conductor/internal/store"
	"github.com/aldermoor/conductor/internal/task"
	"github.com/aldermoor/conductor/internal/verify"
)

// approvingExecutor passes every verification and captures the last request.
type approvingExecutor struct {
	calls   atomic.Int64
	lastReq atomic.Value
}

func (e *approvingExecutor) Execute(_ context.Context, req verify.Request) (*verify.Result, error) {
	e.calls.Add(1)
	e.lastReq.Store(req)
	return &verify.Result{TaskID: req.TaskID, Passed: true, Coverage: -1}, nil
}

func newSinkFixture(t *testing.T) (*GateSink, *verify.Gate, *approvingExecutor) {
	t.Helper()
	s := store.NewMemory()
	require.NoError(t, s.Add(&task.Node{ID: "t1", Status: task.StatusRunning}))

	exec := &approvingExecutor{}
	gate := verify.NewGate(s, exec, nil, nil, verify.Options{
		StabilityDelay: 30 * time.Millisecond,
		MaxRetries:     3,
	})
	t.Cleanup(gate.Dispose)
	return NewGateSink(gate), gate, exec
}

func TestGateSinkFirstChangeQueues(t *testing.T) {
	sink, gate, exec := newSinkFixture(t)

	sink.Expect(verify.Request{TaskID: "t1", AcceptanceCriteria: []string{"compiles"}})
	sink.FileChanged("t1", "/work/a.go")

	assert.True(t, gate.Pending("t1"))

	deadline := time.Now().Add(2 * time.Second)
	for gate.Pending("t1") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.EqualValues(t, 1, exec.calls.Load())

	req := exec.lastReq.Load().(verify.Request)
	assert.Equal(t, []string{"compiles"}, req.AcceptanceCriteria)
	assert.Contains(t, req.ModifiedFiles, "/work/a.go")
}

func TestGateSinkLaterChangesReset(t *testing.T) {
	sink, _, exec := newSinkFixture(t)

	sink.FileChanged("t1", "/work/a.go")
	for i := 0; i < 5; i++ {
		time.Sleep(10 * time.Millisecond)
		sink.FileChanged("t1", "/work/a.go")
		assert.EqualValues(t, 0, exec.calls.Load(), "verification fired while changes kept arriving")
	}

	deadline := time.Now().Add(2 * time.Second)
	for exec.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.EqualValues(t, 1, exec.calls.Load())
}

func TestGateSinkUnknownTaskUsesBareRequest(t *testing.T) {
	sink, gate, _ := newSinkFixture(t)

	sink.FileChanged("t1", "/work/b.go")
	assert.True(t, gate.Pending("t1"))
}

func TestGateSinkLeavesRegisteredRequestIntact(t *testing.T) {
	sink, gate, exec := newSinkFixture(t)

	// Extra capacity makes any write-through to the registered slice visible:
	// without a copy, the second change would land in the first request's
	// backing array.
	base := append(make([]string, 0, 4), "/work/base.go")
	sink.Expect(verify.Request{TaskID: "t1", ModifiedFiles: base})

	sink.FileChanged("t1", "/work/first.go")
	_, ok := gate.RunNow("t1")
	require.True(t, ok)
	first := exec.lastReq.Load().(verify.Request)
	require.Equal(t, []string{"/work/base.go", "/work/first.go"}, first.ModifiedFiles)

	sink.FileChanged("t1", "/work/second.go")
	_, ok = gate.RunNow("t1")
	require.True(t, ok)
	second := exec.lastReq.Load().(verify.Request)

	assert.Equal(t, []string{"/work/base.go", "/work/second.go"}, second.ModifiedFiles)
	assert.Equal(t, []string{"/work/base.go", "/work/first.go"}, first.ModifiedFiles,
		"earlier request mutated by a later change")
	assert.Equal(t, []string{"/work/base.go"}, base)
}

func TestGateSinkForget(t *testing.T) {
	sink, gate, exec := newSinkFixture(t)

	sink.Expect(verify.Request{TaskID: "t1", AcceptanceCriteria: []string{"old criteria"}})
	sink.Forget("t1")
	sink.FileChanged("t1", "/work/a.go")

	deadline := time.Now().Add(2 * time.Second)
	for gate.Pending("t1") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.EqualValues(t, 1, exec.calls.Load())

	req := exec.lastReq.Load().(verify.Request)
	assert.Empty(t, req.AcceptanceCriteria, "forgotten request must not resurface")
}
