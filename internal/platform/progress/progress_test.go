package progress

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestNoopManager_CountsSteps(t *testing.T) {
	var out bytes.Buffer
	m := &NoopManager{Out: &out}

	tr := m.NewTracker(0, 2, "client A", 3)
	tr.Increment("created")
	tr.Increment("exists")
	tr.Done()
	m.NewTracker(1, 2, "client B", 1).Increment("failed")
	m.Wait()

	if m.Steps != 3 {
		t.Errorf("expected 3 steps, got %d", m.Steps)
	}
	if !strings.Contains(out.String(), "[1/2] client A: 3 bulletins") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestMPBManager_CompletesBars(t *testing.T) {
	m := NewMPBManager(io.Discard)
	tr := m.NewTracker(0, 1, "client A", 2)
	tr.Increment("created")
	tr.Increment("created")
	tr.Done()
	m.Wait()
}
