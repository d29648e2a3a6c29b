package utils

import "sync"

type CompletedTask[T any] struct {
	Result T
	Error  error
}

// RunInPool starts one worker per resource. Every worker keeps its resource
// while it drains the queue, so no two tasks share a resource at the same
// time. completed is closed once the queue is drained.
func RunInPool[In any, Out any, R any](worker func(In, R) (Out, error), queue chan In, completed chan CompletedTask[Out], resources []R) {
	workers := min(len(queue), len(resources))

	go func() {
		wg := sync.WaitGroup{}
		wg.Add(workers)

		for i := 0; i < workers; i++ {
			go func(resource R) {
				defer wg.Done()

				for next := range queue {
					res, err := worker(next, resource)
					completed <- CompletedTask[Out]{Result: res, Error: err}
				}
			}(resources[i])
		}

		wg.Wait()

		close(completed)
	}()
}
