package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishEncodesPayload(t *testing.T) {
	t.Parallel()

	p := New()
	id, err := p.Publish(context.Background(), "batch-events", map[string]any{"source": "scb", "rows_written": 8})
	require.NoError(t, err)
	require.Equal(t, "mem-1", id)

	events := p.Messages()
	require.Len(t, events, 1)
	require.Equal(t, "batch-events", events[0].Topic)
	require.JSONEq(t, `{"source":"scb","rows_written":8}`, string(events[0].Data))
}

func TestPublishRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	p := New()
	_, err := p.Publish(context.Background(), "batch-events", make(chan int))
	require.Error(t, err)
	require.Empty(t, p.Messages())
}
