package executor

import "fmt"

// IncompleteTransferError is returned when fewer or more bytes than the
// listed size were received. The partial data never reaches the target path.
type IncompleteTransferError struct {
	Key      string
	Expected int64
	Written  int64
	Err      error
}

func (e *IncompleteTransferError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("incomplete transfer of %s: wrote %d of %d bytes: %v", e.Key, e.Written, e.Expected, e.Err)
	}
	return fmt.Sprintf("incomplete transfer of %s: wrote %d of %d bytes", e.Key, e.Written, e.Expected)
}

func (e *IncompleteTransferError) Unwrap() error {
	return e.Err
}
