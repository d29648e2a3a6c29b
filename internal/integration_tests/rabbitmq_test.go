package integrationtests

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cryocare-backend/internal/messaging"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveTask(t *testing.T, receiver messaging.Reciever) messaging.Task {
	select {
	case task := <-receiver.Tasks():
		return task
	case <-time.After(4 * time.Second):
		t.Fatal("Timed out waiting for task")
		return nil
	}
}

func TestRabbitMQ(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	publisher, receiver := setupQueues(t, ctx)

	for _, queue := range messaging.Queues {
		t.Run("Publish and Receive "+queue, func(t *testing.T) {
			payload := messaging.RunTaskPayload{RunId: uuid.New()}
			require.NoError(t, publisher.PublishRunTask(ctx, queue, payload))

			task := receiveTask(t, receiver)
			assert.Equal(t, queue, task.Type())

			var received messaging.RunTaskPayload
			require.NoError(t, json.Unmarshal(task.Payload(), &received))
			assert.Equal(t, payload, received)

			require.NoError(t, task.Ack())
		})
	}

	t.Run("Nacked tasks are dropped", func(t *testing.T) {
		require.NoError(t, publisher.PublishRunTask(ctx, messaging.TrainQueue, messaging.RunTaskPayload{RunId: uuid.New()}))
		require.NoError(t, receiveTask(t, receiver).Nack())

		next := messaging.RunTaskPayload{RunId: uuid.New()}
		require.NoError(t, publisher.PublishRunTask(ctx, messaging.TrainQueue, next))

		var received messaging.RunTaskPayload
		task := receiveTask(t, receiver)
		require.NoError(t, json.Unmarshal(task.Payload(), &received))
		assert.Equal(t, next, received)
		require.NoError(t, task.Ack())
	})

	t.Run("Unknown queue", func(t *testing.T) {
		assert.Error(t, publisher.PublishRunTask(ctx, "denoise_queue", messaging.RunTaskPayload{RunId: uuid.New()}))
	})

	t.Run("Close ends the task stream", func(t *testing.T) {
		receiver.Close()
		select {
		case _, ok := <-receiver.Tasks():
			assert.False(t, ok)
		case <-time.After(10 * time.Second):
			t.Fatal("task channel was not closed")
		}
	})
}
