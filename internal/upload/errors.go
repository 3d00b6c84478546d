package upload

import (
	"errors"
	"fmt"
)

// ErrNoItems is returned when a batch has nothing to upload
var ErrNoItems = errors.New("no items to upload")

// ItemError records why one item of a batch failed. The rest of the batch
// carries on.
type ItemError struct {
	Index    int
	FileName string
	Cause    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("uploading item %d (%s): %v", e.Index, e.FileName, e.Cause)
}

func (e *ItemError) Unwrap() error {
	return e.Cause
}

// BatchError is returned alongside a partially failed result
type BatchError struct {
	Message       string
	FailedIndices []int
}

func (e *BatchError) Error() string {
	return e.Message
}

// ContainerError means the batch container could not be created, connected
// to, or deleted. It is fatal to the batch.
type ContainerError struct {
	Op    string
	Cause error
}

func (e *ContainerError) Error() string {
	return fmt.Sprintf("container %s: %v", e.Op, e.Cause)
}

func (e *ContainerError) Unwrap() error {
	return e.Cause
}
