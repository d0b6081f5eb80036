package volmgr

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
)

// ExecMode selects how deferred engine results are driven to completion.
type ExecMode int

const (
	// ExecImmediate runs work inline on the submitting goroutine.
	ExecImmediate ExecMode = iota
	// ExecCPU runs work on a pool sized to GOMAXPROCS.
	ExecCPU
	// ExecIO runs work on a pool sized to twice GOMAXPROCS.
	ExecIO
)

func (m ExecMode) String() string {
	switch m {
	case ExecImmediate:
		return "immediate"
	case ExecCPU:
		return "cpu"
	case ExecIO:
		return "io"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseExecMode parses a config-facing executor mode name.
func ParseExecMode(s string) (ExecMode, error) {
	switch strings.ToLower(s) {
	case "", "immediate":
		return ExecImmediate, nil
	case "cpu":
		return ExecCPU, nil
	case "io":
		return ExecIO, nil
	default:
		return ExecImmediate, fmt.Errorf("unknown executor mode %q", s)
	}
}

// Executor runs lifecycle follow-up work either inline or on a fixed worker
// pool, depending on its mode.
type Executor struct {
	mode  ExecMode
	tasks chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

// NewExecutor builds an executor. Pool modes start their workers
// immediately.
func NewExecutor(mode ExecMode) *Executor {
	e := &Executor{mode: mode}
	if mode == ExecImmediate {
		return e
	}

	workers := runtime.GOMAXPROCS(0)
	if mode == ExecIO {
		workers *= 2
	}

	e.tasks = make(chan func(), workers*4)
	for range workers {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for task := range e.tasks {
				task()
			}
		}()
	}
	return e
}

// Mode returns the executor mode.
func (e *Executor) Mode() ExecMode { return e.mode }

// Submit schedules the task. Immediate mode runs it before returning.
func (e *Executor) Submit(task func()) {
	if e.mode == ExecImmediate {
		task()
		return
	}
	e.tasks <- task
}

// Close drains the pool and waits for in-flight tasks. Safe to call more
// than once; Submit must not be called after Close.
func (e *Executor) Close() {
	if e.mode == ExecImmediate {
		return
	}
	e.once.Do(func() {
		close(e.tasks)
	})
	e.wg.Wait()
}
