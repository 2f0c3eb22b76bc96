package bus

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dreamiurg/mountaineers-assistant-sub000/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func receive(t *testing.T, s *Subscription) Message {
	t.Helper()
	select {
	case m := <-s.C():
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestEncodeDecode_Kinds(t *testing.T) {
	limit := 5
	total := 2
	msgs := []Message{
		CollectRequest{RunID: "r1", ExistingUIDs: []string{"a"}, FetchLimit: &limit},
		Progress{RunID: "r1", Origin: "collector", Stage: cache.StageProcessing, Total: &total,
			Delta: &cache.Delta{Activities: []cache.ActivityRecord{{UID: "a1"}}}},
		Result{RunID: "r1", Success: false, Error: "boom"},
		StatusRequest{},
		StatusResponse{Success: true, InProgress: true},
	}

	for _, m := range msgs {
		t.Run(string(m.Kind()), func(t *testing.T) {
			data, err := Encode(m)
			require.NoError(t, err)
			assert.Contains(t, string(data), `"type":"`+string(m.Kind())+`"`)

			got, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, m.Kind(), got.Kind())
		})
	}
}

func TestEncode_CollectRequestNullLimit(t *testing.T) {
	data, err := Encode(CollectRequest{RunID: "r1", ExistingUIDs: []string{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"collect","runId":"r1","existingUids":[],"fetchLimit":null}`, string(data))
}

func TestDecode_RejectsUnknownShapes(t *testing.T) {
	_, err := Decode([]byte(`{"type":"launch-rockets"}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = Decode([]byte(`{"stage":"processing"}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestBus_DeliversByKind(t *testing.T) {
	b := New(testLogger())
	results := b.Subscribe(KindResult)
	defer results.Close()
	all := b.Subscribe()
	defer all.Close()

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, Progress{RunID: "r1", Stage: cache.StageFinalizing}))
	require.NoError(t, b.Publish(ctx, Result{RunID: "r1", Success: true}))

	got := receive(t, results)
	res, ok := got.(Result)
	require.True(t, ok)
	assert.Equal(t, "r1", res.RunID)

	assert.Equal(t, KindProgress, receive(t, all).Kind())
	assert.Equal(t, KindResult, receive(t, all).Kind())
}

func TestBus_SubscribersGetIndependentCopies(t *testing.T) {
	b := New(testLogger())
	s1 := b.Subscribe(KindProgress)
	defer s1.Close()
	s2 := b.Subscribe(KindProgress)
	defer s2.Close()

	delta := &cache.Delta{Activities: []cache.ActivityRecord{{UID: "a1", Title: "Original"}}}
	require.NoError(t, b.Publish(context.Background(), Progress{RunID: "r1", Delta: delta}))

	p1 := receive(t, s1).(Progress)
	p2 := receive(t, s2).(Progress)
	p1.Delta.Activities[0].Title = "Changed"

	assert.Equal(t, "Original", p2.Delta.Activities[0].Title)
	assert.Equal(t, "Original", delta.Activities[0].Title)
}

func TestBus_ClosedSubscriberIsSkipped(t *testing.T) {
	b := New(testLogger())
	s := b.Subscribe()
	s.Close()
	s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < defaultBuffer*2; i++ {
		require.NoError(t, b.Publish(ctx, StatusRequest{}))
	}
}

func TestBus_PublishRawRejectsUnknown(t *testing.T) {
	b := New(testLogger())
	err := b.PublishRaw(context.Background(), []byte(`{"type":"mystery"}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)
}
