package pipeline

import (
	"errors"
	"fmt"
)

// Stage is a step of the computation sequence. Stages only advance.
type Stage int

const (
	Uninitialized Stage = iota
	RuntimeReady
	MechanismLoaded
	Allocated
	BuffersBound
	InputsReady
	InverseDynamicsDone
	MassMatrixDone
	ForwardDynamicsDone
	Terminated
)

var stageNames = [...]string{
	"Uninitialized",
	"RuntimeReady",
	"MechanismLoaded",
	"Allocated",
	"BuffersBound",
	"InputsReady",
	"InverseDynamicsDone",
	"MassMatrixDone",
	"ForwardDynamicsDone",
	"Terminated",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

var (
	// ErrRan is returned by Run on a pipeline that already ran.
	ErrRan = errors.New("pipeline: already run")

	// ErrBufferLength indicates a borrowed buffer whose length does not match the mechanism.
	ErrBufferLength = errors.New("pipeline: buffer length mismatch")

	// ErrVerification indicates results that fail the residual checks.
	ErrVerification = errors.New("pipeline: verification failed")
)

// StageError reports the step that failed. Stage is the step being attempted.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
