// Package async runs a fixed set of independent tasks on a bounded number of goroutines.
package async

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Task is a named unit of work. Run should write its output through a closure.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Result reports how a task finished.
type Result struct {
	Name     string
	Err      error
	Duration time.Duration
}

type Pool struct {
	workerCount int
}

func NewPool(workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{workerCount: workerCount}
}

// Execute runs every task and returns their results in task order. Tasks not
// started before ctx is cancelled report ctx.Err(). A panicking task reports
// the panic as its error.
func (p *Pool) Execute(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	indexes := make(chan int)

	var wg sync.WaitGroup
	workers := p.workerCount
	if workers > len(tasks) {
		workers = len(tasks)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = runTask(ctx, tasks[i])
			}
		}()
	}

	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			results[i] = Result{Name: task.Name, Err: err}
			continue
		}
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	return results
}

func runTask(ctx context.Context, task Task) (result Result) {
	start := time.Now()
	result.Name = task.Name
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
		result.Duration = time.Since(start)
	}()
	result.Err = task.Run(ctx)
	return result
}

// FirstError returns the first failed result's error, annotated with the task name.
func FirstError(results []Result) error {
	for _, r := range results {
		if r.Err != nil {
			return fmt.Errorf("%s: %w", r.Name, r.Err)
		}
	}
	return nil
}
