package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	PrepareQueue    = "prepare_queue"
	TrainQueue      = "train_queue"
	PredictQueue    = "predict_queue"
	LoadQueue       = "load_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

var Queues = []string{PrepareQueue, TrainQueue, PredictQueue, LoadQueue}

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

type RunTaskPayload struct {
	RunId uuid.UUID
}

type Publisher interface {
	PublishRunTask(ctx context.Context, queue string, payload RunTaskPayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}

// QueueFor returns the queue runs of the given protocol are published to.
// Loading models and train data is cheap, so both share one queue.
func QueueFor(protocol string) (string, error) {
	switch protocol {
	case "prepare_training_data":
		return PrepareQueue, nil
	case "train":
		return TrainQueue, nil
	case "predict":
		return PredictQueue, nil
	case "load_model", "load_train_data":
		return LoadQueue, nil
	default:
		return "", fmt.Errorf("no queue for protocol '%s'", protocol)
	}
}

func validQueue(queue string) error {
	for _, q := range Queues {
		if q == queue {
			return nil
		}
	}
	return fmt.Errorf("unknown queue '%s'", queue)
}
