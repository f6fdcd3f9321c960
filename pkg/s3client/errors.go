package s3client

import (
	"errors"
	"fmt"
)

// StoreUnavailableError reports that the remote store could not be reached,
// or refused access, after the retry policy was exhausted.
type StoreUnavailableError struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *StoreUnavailableError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("store unavailable: %s s3://%s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	return fmt.Sprintf("store unavailable: %s s3://%s: %v", e.Op, e.Bucket, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

// IsStoreUnavailable reports whether err wraps a *StoreUnavailableError.
func IsStoreUnavailable(err error) bool {
	var unavailable *StoreUnavailableError
	return errors.As(err, &unavailable)
}
