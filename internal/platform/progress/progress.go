// Package progress renders batch job progress on the terminal.
package progress

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Tracker follows one unit of batch work, such as the bulletins of a client.
type Tracker interface {
	Increment(outcome string)
	Done()
}

// Manager creates trackers.
type Manager interface {
	NewTracker(index, total int, name string, steps int64) Tracker
	Wait()
}

// MPBManager renders one bar per tracker with mpb.
type MPBManager struct {
	container *mpb.Progress
}

// NewMPBManager writes bars to out. A nil out means stdout.
func NewMPBManager(out io.Writer) *MPBManager {
	opts := []mpb.ContainerOption{mpb.WithWidth(50)}
	if out != nil {
		opts = append(opts, mpb.WithOutput(out))
	}
	return &MPBManager{container: mpb.New(opts...)}
}

func (m *MPBManager) NewTracker(index, total int, name string, steps int64) Tracker {
	last := &atomic.Value{}
	last.Store("")
	bar := m.container.AddBar(steps,
		mpb.PrependDecorators(
			decor.Name(fmt.Sprintf("[%d/%d] %s ", index+1, total, name), decor.WCSyncSpaceR),
			decor.CountersNoUnit("%d/%d", decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.Any(func(s decor.Statistics) string {
				return last.Load().(string)
			}),
		),
	)
	return &mpbTracker{bar: bar, last: last}
}

func (m *MPBManager) Wait() {
	m.container.Wait()
}

type mpbTracker struct {
	bar  *mpb.Bar
	last *atomic.Value
}

func (t *mpbTracker) Increment(outcome string) {
	t.last.Store(outcome)
	t.bar.Increment()
}

func (t *mpbTracker) Done() {
	t.bar.SetTotal(-1, true)
}

// NoopManager prints one line per tracker for non-interactive runs.
type NoopManager struct {
	Out   io.Writer
	Steps int64
}

func (m *NoopManager) NewTracker(index, total int, name string, steps int64) Tracker {
	if m.Out != nil {
		fmt.Fprintf(m.Out, "[%d/%d] %s: %d bulletins\n", index+1, total, name, steps)
	}
	return &noopTracker{mgr: m}
}

func (m *NoopManager) Wait() {}

type noopTracker struct {
	mgr *NoopManager
}

func (t *noopTracker) Increment(outcome string) {
	atomic.AddInt64(&t.mgr.Steps, 1)
}

func (t *noopTracker) Done() {}
