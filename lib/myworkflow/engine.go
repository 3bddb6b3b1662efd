package myworkflow

import (
	"context"
	"fmt"
	"time"

	"github.com/MarcGrol/funnelbackend/lib/myerrors"
	"github.com/MarcGrol/funnelbackend/lib/mylog"
	"github.com/MarcGrol/funnelbackend/lib/mystore"
	"github.com/MarcGrol/funnelbackend/lib/mytime"
)

const (
	defaultMaxAttempts = 3
	defaultStepTimeout = 30 * time.Second
)

// Engine executes multi-step workflows: steps within a run execute strictly
// sequentially, runs of the same workflow are capped by a semaphore, and the
// whole run is retried a bounded number of times on transient errors. Each
// completed step is persisted with the run, so a retry or a re-driven run
// never repeats a side effect.
type Engine struct {
	runStore   mystore.Store[WorkflowRun]
	specs      map[string]Spec
	semaphores map[string]chan struct{}
	nower      mytime.Nower
	logger     mylog.Logger
}

func NewEngine(c context.Context, nower mytime.Nower, specs ...Spec) (*Engine, func(), error) {
	runStore, storeCleanup, err := mystore.New[WorkflowRun](c)
	if err != nil {
		return nil, nil, err
	}

	specMap := map[string]Spec{}
	semaphores := map[string]chan struct{}{}
	for _, spec := range specs {
		if spec.MaxAttempts <= 0 {
			spec.MaxAttempts = defaultMaxAttempts
		}
		if spec.StepTimeout <= 0 {
			spec.StepTimeout = defaultStepTimeout
		}
		if spec.MaxConcurrency <= 0 {
			return nil, nil, fmt.Errorf("workflow %s needs a concurrency cap", spec.Name)
		}
		specMap[spec.Name] = spec
		semaphores[spec.Name] = make(chan struct{}, spec.MaxConcurrency)
	}

	return &Engine{
		runStore:   runStore,
		specs:      specMap,
		semaphores: semaphores,
		nower:      nower,
		logger:     mylog.New("workflow"),
	}, storeCleanup, nil
}

// Execute runs the steps for the given run uid. Re-executing an already
// completed run is a no-op success. The caller supplies the steps on each
// invocation: skip decisions are based on the persisted step results.
func (e *Engine) Execute(c context.Context, workflowName string, runUID string, steps []Step) error {
	spec, found := e.specs[workflowName]
	if !found {
		return myerrors.NewInternalError(fmt.Errorf("unknown workflow %s", workflowName))
	}

	err := e.acquireSlot(c, workflowName)
	if err != nil {
		return err
	}
	defer e.releaseSlot(workflowName)

	run, err := e.loadOrCreateRun(c, workflowName, runUID)
	if err != nil {
		return err
	}
	if run.Status == RunStatusCompleted {
		e.logger.Log(c, runUID, mylog.SeverityInfo, "Run %s of workflow %s already completed -> skip", runUID, workflowName)
		return nil
	}
	if run.Status == RunStatusFailed {
		// a decided run stays decided: recovery takes a fresh run uid
		return myerrors.NewConflictError(fmt.Errorf("run %s of workflow %s already failed: %s", runUID, workflowName, run.LastError))
	}
	run.Status = RunStatusRunning

	var lastErr error
	for run.Attempt < spec.MaxAttempts {
		run.Attempt++

		lastErr = e.executeSteps(c, spec, &run, steps)
		if lastErr == nil {
			run.Status = RunStatusCompleted
			run.LastError = ""
			return e.storeRun(c, &run)
		}

		run.LastError = lastErr.Error()
		if !myerrors.IsRetryable(lastErr) {
			break
		}

		e.logger.Log(c, runUID, mylog.SeverityWarn, "Attempt %d of run %s of workflow %s failed: %s",
			run.Attempt, runUID, workflowName, lastErr)
		err = e.storeRun(c, &run)
		if err != nil {
			return err
		}
	}

	if lastErr == nil {
		// attempts were already exhausted by an earlier invocation
		lastErr = myerrors.NewConflictError(fmt.Errorf("run %s of workflow %s has no attempts left: %s", runUID, workflowName, run.LastError))
	}

	run.Status = RunStatusFailed
	err = e.storeRun(c, &run)
	if err != nil {
		return err
	}

	return lastErr
}

func (e *Engine) executeSteps(c context.Context, spec Spec, run *WorkflowRun, steps []Step) error {
	for _, step := range steps {
		if _, done := run.CompletedStep(step.Name); done {
			e.logger.Log(c, run.UID, mylog.SeverityInfo, "Step %s of run %s already done -> skip", step.Name, run.UID)
			continue
		}

		stepCtx, cancel := context.WithTimeout(withRun(withAttempt(c, run.Attempt), run), spec.StepTimeout)
		output, err := step.Do(stepCtx)
		cancel()
		if err != nil {
			return err
		}

		run.StepResults = append(run.StepResults, StepResult{
			Name:        step.Name,
			Output:      output,
			CompletedAt: e.nower.Now(),
		})
		err = e.storeRun(c, run)
		if err != nil {
			return err
		}
	}

	return nil
}

func (e *Engine) loadOrCreateRun(c context.Context, workflowName string, runUID string) (WorkflowRun, error) {
	var run WorkflowRun
	err := e.runStore.RunInTransaction(c, func(c context.Context) error {
		existing, found, err := e.runStore.Get(c, runUID)
		if err != nil {
			return myerrors.NewInternalError(fmt.Errorf("error fetching run %s: %s", runUID, err))
		}
		if found {
			run = existing
			return nil
		}

		run = WorkflowRun{
			UID:          runUID,
			WorkflowName: workflowName,
			Status:       RunStatusPending,
			CreatedAt:    e.nower.Now(),
		}
		return e.runStore.Put(c, runUID, run)
	})
	if err != nil {
		return WorkflowRun{}, err
	}

	return run, nil
}

func (e *Engine) storeRun(c context.Context, run *WorkflowRun) error {
	now := e.nower.Now()
	run.LastModified = &now
	err := e.runStore.Put(c, run.UID, *run)
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error storing run %s: %s", run.UID, err))
	}
	return nil
}

func (e *Engine) acquireSlot(c context.Context, workflowName string) error {
	select {
	case e.semaphores[workflowName] <- struct{}{}:
		return nil
	case <-c.Done():
		return myerrors.NewUnavailableError(fmt.Errorf("no execution slot for workflow %s: %s", workflowName, c.Err()))
	}
}

func (e *Engine) releaseSlot(workflowName string) {
	<-e.semaphores[workflowName]
}
