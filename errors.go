package docket

import "errors"

var (
	// Store errors.
	ErrStoreClosed = errors.New("docket: store closed")

	// Not found errors.
	ErrJobNotFound     = errors.New("docket: job not found")
	ErrUnknownCallable = errors.New("docket: unknown callable")

	// Job errors.
	ErrReservedField = errors.New("docket: reserved job field")
	ErrJobCancelled  = errors.New("docket: job cancelled")

	// Manager errors.
	ErrManagerClosed = errors.New("docket: manager shut down")
	ErrEmptyCommand  = errors.New("docket: empty command line")
)
