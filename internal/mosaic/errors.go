package mosaic

import (
	"errors"
	"fmt"

	"github.com/kiesman99/mosaic/internal/prepare"
)

var (
	// ErrInput marks a missing, unreadable or undecodable input file.
	ErrInput = prepare.ErrInput
	// ErrInvalidConfig marks invalid options, such as a zero tile size.
	ErrInvalidConfig = prepare.ErrInvalidConfig
	// ErrNoTiles is returned when the tile library holds no usable image.
	ErrNoTiles = errors.New("no usable tiles")
	// ErrTilesExhausted is returned when tiles may not be reused and every
	// tile has been placed before all blocks were filled.
	ErrTilesExhausted = errors.New("tiles exhausted")
	// ErrOutput marks a failure to encode or write the result.
	ErrOutput = errors.New("can't write output")
)

// Stage names the step of Compute that failed
type Stage string

const (
	StageConfigure   Stage = "configure"
	StageLoadTarget  Stage = "load target"
	StageLoadTiles   Stage = "load tiles"
	StageCompose     Stage = "compose"
	StageWriteOutput Stage = "write output"
)

// StageError wraps an error with the stage it happened in
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}
