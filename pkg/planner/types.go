package planner

import (
	"time"

	"github.com/yuya-takeyama/goes-mirror/pkg/inventory"
)

type Decision string

const (
	DecisionSkip           Decision = "skip"
	DecisionFetch          Decision = "fetch"
	DecisionOverwriteFetch Decision = "overwrite"
)

const (
	ReasonFiltered     = "filtered"
	ReasonOutsideRange = "outside time window"
	ReasonUpToDate     = "up to date"
	ReasonNewFile      = "new file"
	ReasonOverwrite    = "overwrite requested"
	ReasonOutsideRoot  = "key resolves outside the local root"
)

// LocalTarget is where a remote object is placed under the local root.
// RelativePath is slash separated, AbsolutePath uses the OS separator.
type LocalTarget struct {
	RelativePath string
	AbsolutePath string
}

type Task struct {
	Object   inventory.Object
	Target   LocalTarget
	Decision Decision
	Reason   string
}

// NeedsTransfer reports whether the task moves bytes.
func (t Task) NeedsTransfer() bool {
	return t.Decision != DecisionSkip
}

type Options struct {
	LocalRoot string
	Overwrite bool

	// NameFilter is evaluated on the bare file name before the local file is
	// probed. Nil accepts every name.
	NameFilter func(name string) bool

	// Start and End bound the scan start time parsed from file names,
	// [Start, End). Zero values leave that side open.
	Start time.Time
	End   time.Time
}

// LocalState is the result of probing a LocalTarget.
type LocalState struct {
	Exists  bool
	Size    int64
	StatErr error
}
