package pipeline

import "errors"

var (
	// ErrPipelineNotFound — активный pipeline с таким id/именем не найден.
	ErrPipelineNotFound = errors.New("pipeline not found or inactive")

	// ErrEmptyPipeline — у pipeline нет шагов.
	ErrEmptyPipeline = errors.New("pipeline has no steps")

	// ErrStepNotResumable — шаг не в состоянии waiting.
	ErrStepNotResumable = errors.New("step is not waiting")
)
