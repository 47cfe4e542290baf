package process_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jurassik/jurassik/internal/process"
)

type fakeHandle struct {
	pid int
}

func (h *fakeHandle) Pid() int                       { return h.pid }
func (h *fakeHandle) Terminate(time.Duration) error { return nil }
func (h *fakeHandle) Kill(time.Duration) error      { return nil }

func TestRegistry_AddRemove(t *testing.T) {
	r := process.NewRegistry()

	a := &fakeHandle{pid: 1}
	b := &fakeHandle{pid: 2}

	r.Add(a)
	r.Add(b)
	r.Add(a)

	assert.Equal(t, 2, r.Len())
	assert.True(t, r.Contains(a))

	r.Remove(a)

	assert.Equal(t, 1, r.Len())
	assert.False(t, r.Contains(a))

	r.Clear()
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Snapshot_IsACopy(t *testing.T) {
	r := process.NewRegistry()

	for i := 0; i < 3; i++ {
		r.Add(&fakeHandle{pid: i})
	}

	snapshot := r.Snapshot()

	for _, h := range snapshot {
		r.Remove(h)
	}

	assert.Len(t, snapshot, 3)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := process.NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := &fakeHandle{pid: i}
			r.Add(h)
			_ = r.Snapshot()
			r.Remove(h)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Close_RejectsNewProcesses(t *testing.T) {
	r := process.NewRegistry()

	before := &fakeHandle{pid: 1}
	require.True(t, r.Add(before))

	r.Close()

	after := &fakeHandle{pid: 2}
	assert.False(t, r.Add(after))
	assert.False(t, r.Contains(after))

	assert.Equal(t, []process.Handle{before}, r.Snapshot())
}
