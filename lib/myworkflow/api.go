package myworkflow

import (
	"context"
	"time"
)

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// StepResult is the durable record of a step that ran to completion. A run
// that is retried consults these before executing a step, so a side effect
// never happens twice for the same run.
type StepResult struct {
	Name        string
	Output      string `datastore:",noindex"`
	CompletedAt time.Time
}

// WorkflowRun is one durable execution of a named workflow. It survives
// process crashes: re-driving the same run uid resumes after the last
// completed step.
type WorkflowRun struct {
	UID          string
	WorkflowName string
	Status       RunStatus
	Attempt      int
	LastError    string `datastore:",noindex"`
	StepResults  []StepResult
	CreatedAt    time.Time
	LastModified *time.Time
}

func (r WorkflowRun) CompletedStep(name string) (StepResult, bool) {
	for _, sr := range r.StepResults {
		if sr.Name == name {
			return sr, true
		}
	}
	return StepResult{}, false
}

// Step is a named unit of work within a workflow. Do returns an output that
// is cached with the run. The context passed in carries the step timeout and
// the current attempt number.
type Step struct {
	Name string
	Do   func(c context.Context) (string, error)
}

type ctxAttemptKeyType struct{}

var ctxAttemptKey = ctxAttemptKeyType{}

func withAttempt(c context.Context, attempt int) context.Context {
	return context.WithValue(c, ctxAttemptKey, attempt)
}

// AttemptFromContext tells a step which attempt of its run is executing,
// starting at 1.
func AttemptFromContext(c context.Context) int {
	attempt, ok := c.Value(ctxAttemptKey).(int)
	if !ok {
		return 1
	}
	return attempt
}

type ctxRunKeyType struct{}

var ctxRunKey = ctxRunKeyType{}

func withRun(c context.Context, run *WorkflowRun) context.Context {
	return context.WithValue(c, ctxRunKey, run)
}

// StepOutput returns the cached output of an earlier completed step of the
// executing run. A step that persists the result of a preceding external call
// reads the call's output from here, so a retried persist never repeats the
// call itself.
func StepOutput(c context.Context, stepName string) (string, bool) {
	run, ok := c.Value(ctxRunKey).(*WorkflowRun)
	if !ok {
		return "", false
	}
	result, found := run.CompletedStep(stepName)
	return result.Output, found
}

// Spec describes the execution policy of a named workflow.
type Spec struct {
	Name string
	// MaxAttempts bounds how often the whole run is retried on transient errors.
	MaxAttempts int
	// MaxConcurrency caps how many runs of this workflow execute at once.
	MaxConcurrency int
	// StepTimeout bounds each individual step, including external calls.
	StepTimeout time.Duration
}
