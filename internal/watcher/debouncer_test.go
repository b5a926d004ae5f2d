package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan []FileEvent) []FileEvent {
	t.Helper()
	select {
	case batch := <-ch:
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
		return nil
	}
}

func TestDebouncer_Coalesces(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want []Operation
	}{
		{"create then modify stays create", []Operation{OpCreate, OpModify, OpModify}, []Operation{OpCreate}},
		{"delete then create is modify", []Operation{OpDelete, OpCreate}, []Operation{OpModify}},
		{"modify then delete is delete", []Operation{OpModify, OpDelete}, []Operation{OpDelete}},
		{"single modify", []Operation{OpModify}, []Operation{OpModify}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(20 * time.Millisecond)
			defer d.Stop()

			for _, op := range tt.ops {
				d.Add(FileEvent{Path: "/corpus/nf.pdf", Operation: op})
			}

			batch := receive(t, d.Output())
			require.Len(t, batch, len(tt.want))
			assert.Equal(t, tt.want[0], batch[0].Operation)
		})
	}
}

func TestDebouncer_CreateThenDeleteCancels(t *testing.T) {
	// Given: a temp file that appears and vanishes, plus a real change
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "/corpus/~lock.pdf", Operation: OpCreate})
	d.Add(FileEvent{Path: "/corpus/~lock.pdf", Operation: OpDelete})
	d.Add(FileEvent{Path: "/corpus/b.pdf", Operation: OpModify})
	d.Add(FileEvent{Path: "/corpus/a.pdf", Operation: OpCreate})

	// Then: only the surviving paths are emitted, sorted
	batch := receive(t, d.Output())
	require.Len(t, batch, 2)
	assert.Equal(t, "/corpus/a.pdf", batch[0].Path)
	assert.Equal(t, "/corpus/b.pdf", batch[1].Path)
}

func TestDebouncer_StopClosesOutput(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Add(FileEvent{Path: "x", Operation: OpCreate})

	d.Stop()
	d.Stop()
	d.Add(FileEvent{Path: "y", Operation: OpCreate})

	_, ok := <-d.Output()
	assert.False(t, ok)
}

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "MODIFY", OpModify.String())
	assert.Equal(t, "DELETE", OpDelete.String())
	assert.Equal(t, "UNKNOWN", Operation(99).String())
}
