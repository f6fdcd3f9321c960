package report

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"

	"github.com/yuya-takeyama/goes-mirror/pkg/executor"
	"github.com/yuya-takeyama/goes-mirror/pkg/migrator"
	"github.com/yuya-takeyama/goes-mirror/pkg/planner"
)

// PlanResult represents the planned operations before execution
type PlanResult struct {
	Files   []PlanFile  `json:"files"`
	Summary PlanSummary `json:"summary"`
}

type PlanFile struct {
	Action string `json:"action"` // "skip", "create", "update"
	Source string `json:"source"`
	Target string `json:"target"`
	Reason string `json:"reason"`
}

type PlanSummary struct {
	Skip   int `json:"skip"`
	Create int `json:"create"`
	Update int `json:"update"`
}

// SyncResult represents the actual execution results
type SyncResult struct {
	Files   []ResultFile  `json:"files"`
	Errors  []ErrorFile   `json:"errors"`
	Summary ResultSummary `json:"summary"`
}

type ResultFile struct {
	Action string `json:"action"` // "skipped", "created", "updated"
	Source string `json:"source"`
	Target string `json:"target"`
	Bytes  int64  `json:"bytes,omitempty"`
}

type ErrorFile struct {
	Action string `json:"action"` // "create", "update"
	Source string `json:"source"`
	Target string `json:"target"`
	Error  string `json:"error"`
}

type ResultSummary struct {
	Skipped int   `json:"skipped"`
	Created int   `json:"created"`
	Updated int   `json:"updated"`
	Failed  int   `json:"failed"`
	Bytes   int64 `json:"bytes"`
}

// MigrationResult represents the outcome of a migrate run
type MigrationResult struct {
	Files        []MigrationFile  `json:"files"`
	Unrecognized []string         `json:"unrecognized"`
	Summary      MigrationSummary `json:"summary"`
}

type MigrationFile struct {
	Action string `json:"action"` // "moved", "planned", "conflict", "failed"
	Source string `json:"source"`
	Target string `json:"target"`
	Error  string `json:"error,omitempty"`
}

type MigrationSummary struct {
	Moved        int `json:"moved"`
	Planned      int `json:"planned"`
	Conflicts    int `json:"conflicts"`
	Failed       int `json:"failed"`
	InPlace      int `json:"in_place"`
	Unrecognized int `json:"unrecognized"`
}

// actionName maps a transfer decision to "create" for new files and
// "update" for replaced ones.
func actionName(task planner.Task) string {
	switch {
	case !task.NeedsTransfer():
		return "skip"
	case task.Reason == planner.ReasonNewFile:
		return "create"
	default:
		return "update"
	}
}

func NewPlanResult(tasks []planner.Task) PlanResult {
	plan := PlanResult{Files: []PlanFile{}}
	for _, task := range tasks {
		action := actionName(task)
		plan.Files = append(plan.Files, PlanFile{
			Action: action,
			Source: task.Object.URI(),
			Target: task.Target.AbsolutePath,
			Reason: task.Reason,
		})
		switch action {
		case "skip":
			plan.Summary.Skip++
		case "create":
			plan.Summary.Create++
		default:
			plan.Summary.Update++
		}
	}
	return plan
}

func NewSyncResult() *SyncResult {
	return &SyncResult{
		Files:  []ResultFile{},
		Errors: []ErrorFile{},
	}
}

// Add records one outcome. It is not safe for concurrent use.
func (r *SyncResult) Add(o executor.Outcome) {
	action := actionName(o.Task)
	source := o.Task.Object.URI()
	target := o.Task.Target.AbsolutePath

	if o.Result == executor.ResultFailed {
		errMsg := "unknown error"
		if o.Err != nil {
			errMsg = o.Err.Error()
		}
		r.Errors = append(r.Errors, ErrorFile{Action: action, Source: source, Target: target, Error: errMsg})
		r.Summary.Failed++
		return
	}

	var past string
	switch action {
	case "skip":
		past = "skipped"
		r.Summary.Skipped++
	case "create":
		past = "created"
		r.Summary.Created++
	default:
		past = "updated"
		r.Summary.Updated++
	}
	r.Summary.Bytes += o.Bytes
	r.Files = append(r.Files, ResultFile{Action: past, Source: source, Target: target, Bytes: o.Bytes})
}

func NewMigrationResult(rep *migrator.Report) MigrationResult {
	result := MigrationResult{
		Files:        []MigrationFile{},
		Unrecognized: []string{},
	}
	for _, res := range rep.Results {
		file := MigrationFile{Source: res.CurrentPath, Target: res.TargetPath}
		switch {
		case res.Err != nil:
			file.Action = "failed"
			file.Error = res.Err.Error()
			result.Summary.Failed++
		case res.Conflict:
			file.Action = "conflict"
			result.Summary.Conflicts++
		case res.Applied:
			file.Action = "moved"
			result.Summary.Moved++
		default:
			file.Action = "planned"
			result.Summary.Planned++
		}
		result.Files = append(result.Files, file)
	}
	for _, u := range rep.Unrecognized {
		result.Unrecognized = append(result.Unrecognized, u.Path)
	}
	result.Summary.InPlace = rep.InPlace
	result.Summary.Unrecognized = len(rep.Unrecognized)
	return result
}

// WriteJSON writes v as indented JSON to path.
func WriteJSON(fs afero.Fs, path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
