package tasks

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVectorIndexTask(t *testing.T) {
	task, err := NewVectorIndexTask("vec_1", "t_1", "cid")
	require.NoError(t, err)
	assert.Equal(t, TypeVectorIndex, task.Type())

	var payload VectorIndexPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, VectorIndexPayload{VectorID: "vec_1", TaskID: "t_1", RequestID: "cid"}, payload)
}

func TestInlineEnqueuerRunsHandler(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeVectorSync, func(_ context.Context, task *asynq.Task) error {
		var payload VectorSyncPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return err
		}
		mu.Lock()
		seen = append(seen, payload.VectorID)
		mu.Unlock()
		return nil
	})

	enq := NewInlineEnqueuer(mux, nil)
	ctx, cancel := context.WithCancel(context.Background())
	for _, id := range []string{"vec_1", "vec_2"} {
		task, err := NewVectorSyncTask(id, "")
		require.NoError(t, err)
		require.NoError(t, enq.Enqueue(ctx, task))
	}
	// 请求结束不影响已投递的任务
	cancel()
	enq.Wait()

	assert.ElementsMatch(t, []string{"vec_1", "vec_2"}, seen)
}
