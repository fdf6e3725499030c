package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgn-hub/sgn-grade-hub/internal/domain/shared"
)

func testHub() *StreamHub {
	config := DefaultStreamHubConfig()
	config.Retention = 50 * time.Millisecond
	return NewStreamHub(config)
}

func logEvent(seq int, message string) shared.ProgressEvent {
	e := shared.NewProgressEvent(shared.LevelInfo, message)
	e.Seq = seq
	return e
}

func doneEvent(seq int) shared.ProgressEvent {
	e := shared.NewTerminalEvent(true, "Processados: 2/2 alunos", "")
	e.Seq = seq
	return e
}

func collect(t *testing.T, ch <-chan shared.ProgressEvent, n int) []shared.ProgressEvent {
	t.Helper()
	var events []shared.ProgressEvent
	timeout := time.After(2 * time.Second)
	for len(events) < n {
		select {
		case e, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, e)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(events), n)
		}
	}
	return events
}

func TestStreamDeliversInPublishOrder(t *testing.T) {
	hub := testHub()
	sink := hub.OpenStream("run-1")

	ch, cancel, err := hub.Subscribe("run-1")
	require.NoError(t, err)
	defer cancel()

	sink.Publish(logEvent(1, "Autenticando no SGN..."))
	sink.Publish(logEvent(2, "Lendo avaliações do período TR2..."))
	sink.Publish(logEvent(3, "Notas aplicadas para Ana."))

	events := collect(t, ch, 3)
	require.Len(t, events, 3)
	for i, e := range events {
		assert.Equal(t, i+1, e.Seq)
	}
}

func TestLateSubscriberGetsFullReplay(t *testing.T) {
	hub := testHub()
	sink := hub.OpenStream("run-1")

	sink.Publish(logEvent(1, "primeiro"))
	sink.Publish(logEvent(2, "segundo"))

	ch, cancel, err := hub.Subscribe("run-1")
	require.NoError(t, err)
	defer cancel()

	sink.Publish(logEvent(3, "terceiro"))

	events := collect(t, ch, 3)
	assert.Equal(t, "primeiro", events[0].Message)
	assert.Equal(t, "segundo", events[1].Message)
	assert.Equal(t, "terceiro", events[2].Message)
}

func TestTerminalEventClosesSubscribers(t *testing.T) {
	hub := testHub()
	sink := hub.OpenStream("run-1")

	ch, cancel, err := hub.Subscribe("run-1")
	require.NoError(t, err)
	defer cancel()

	sink.Publish(logEvent(1, "andamento"))
	sink.Publish(doneEvent(2))

	events := collect(t, ch, 2)
	require.Len(t, events, 2)
	assert.True(t, events[1].IsTerminal())

	_, open := <-ch
	assert.False(t, open, "channel should be closed after the terminal event")

	// Nothing published after the terminal event is retained.
	sink.Publish(logEvent(3, "tarde demais"))
	late, _, err := hub.Subscribe("run-1")
	require.NoError(t, err)
	assert.Len(t, collect(t, late, 2), 2)
}

func TestSubscribeAfterFinishReplaysAndCloses(t *testing.T) {
	hub := testHub()
	sink := hub.OpenStream("run-1")
	sink.Publish(logEvent(1, "andamento"))
	sink.Publish(doneEvent(2))

	ch, cancel, err := hub.Subscribe("run-1")
	require.NoError(t, err)
	defer cancel()

	events := collect(t, ch, 2)
	require.Len(t, events, 2)
	_, open := <-ch
	assert.False(t, open)
}

func TestCloseStreamRetainsHistoryForRetentionWindow(t *testing.T) {
	hub := testHub()
	sink := hub.OpenStream("run-1")
	sink.Publish(logEvent(1, "andamento"))

	hub.CloseStream("run-1")

	ch, cancel, err := hub.Subscribe("run-1")
	require.NoError(t, err)
	defer cancel()
	assert.Len(t, collect(t, ch, 1), 1)

	assert.Eventually(t, func() bool {
		_, _, err := hub.Subscribe("run-1")
		return err == ErrStreamNotFound
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSubscribeUnknownRun(t *testing.T) {
	_, _, err := testHub().Subscribe("missing")
	assert.ErrorIs(t, err, ErrStreamNotFound)
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	config := DefaultStreamHubConfig()
	config.SubscriberBuffer = 1
	hub := NewStreamHub(config)
	sink := hub.OpenStream("run-1")

	ch, cancel, err := hub.Subscribe("run-1")
	require.NoError(t, err)
	defer cancel()

	// Buffer of one: the second publish overflows and drops the subscriber.
	sink.Publish(logEvent(1, "um"))
	sink.Publish(logEvent(2, "dois"))

	events := collect(t, ch, 1)
	require.Len(t, events, 1)
	_, open := <-ch
	assert.False(t, open, "slow subscriber channel should be closed")

	// The stream itself keeps running and keeps its history.
	fresh, freshCancel, err := hub.Subscribe("run-1")
	require.NoError(t, err)
	defer freshCancel()
	assert.Len(t, collect(t, fresh, 2), 2)
}

func TestHubCloseFinishesEverything(t *testing.T) {
	hub := testHub()
	sink := hub.OpenStream("run-1")

	ch, cancel, err := hub.Subscribe("run-1")
	require.NoError(t, err)
	defer cancel()

	hub.Close()

	_, open := <-ch
	assert.False(t, open)

	_, _, err = hub.Subscribe("run-1")
	assert.ErrorIs(t, err, ErrHubClosed)

	// Publishing into a closed hub is a no-op, not a panic.
	sink.Publish(logEvent(1, "depois do fim"))
}
