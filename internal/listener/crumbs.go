package listener

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/opus-domini/sentinel/internal/core"
	"github.com/opus-domini/sentinel/internal/core/ids"
)

// Crumb is the on-disk sidecar summarizing one job's state, rewritten
// on every material change so a crash mid-run still leaves enough on
// disk to reconstruct an orphan at the next startup (spec.md §6).
type Crumb struct {
	JobID         ids.JobID    `json:"jobId"`
	Project       string       `json:"project"`
	Name          string       `json:"name"`
	Kind          string       `json:"kind"`
	Step          string       `json:"step"`
	StepStatus    string       `json:"stepStatus"`
	WorkspaceRoot string       `json:"workspaceRoot"`
	Agents        []CrumbAgent `json:"agents"`
	UpdatedAtMS   int64        `json:"updatedAtMs"`
}

// CrumbAgent names one agent owned by the job's current step, with the
// tmux session name it was last known to be driving.
type CrumbAgent struct {
	AgentID     ids.AgentID `json:"agentId"`
	SessionName string      `json:"sessionName,omitempty"`
}

// CrumbStore writes and reads logs/{job_id}.crumb.json sidecars under
// the daemon's state directory, and implements runtime.CrumbWriter.
type CrumbStore struct {
	dir string
	now func() int64
}

// NewCrumbStore returns a CrumbStore rooted at stateDir/logs.
func NewCrumbStore(stateDir string, now func() int64) *CrumbStore {
	return &CrumbStore{dir: filepath.Join(stateDir, "logs"), now: now}
}

func (c *CrumbStore) path(jobID ids.JobID) string {
	return filepath.Join(c.dir, string(jobID)+".crumb.json")
}

// Sync rewrites job's crumb file to match its current record and the
// agents it owns, atomically (write-tmp-then-rename).
func (c *CrumbStore) Sync(job core.Job, agents []core.Agent) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}
	crumb := Crumb{
		JobID:         job.ID,
		Project:       job.Cwd,
		Name:          job.Name,
		Kind:          job.Kind,
		Step:          job.CurrentStep,
		StepStatus:    string(job.StepStatus),
		WorkspaceRoot: job.WorkspacePath,
		UpdatedAtMS:   c.now(),
	}
	for _, a := range agents {
		name := ""
		if a.SessionID != nil {
			name = string(*a.SessionID)
		}
		crumb.Agents = append(crumb.Agents, CrumbAgent{AgentID: a.ID, SessionName: name})
	}

	data, err := json.Marshal(crumb)
	if err != nil {
		return fmt.Errorf("marshal crumb %s: %w", job.ID, err)
	}
	path := c.path(job.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write crumb tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename crumb into place: %w", err)
	}
	return nil
}

// Delete removes job's crumb file, if present.
func (c *CrumbStore) Delete(jobID ids.JobID) error {
	if err := os.Remove(c.path(jobID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete crumb %s: %w", jobID, err)
	}
	return nil
}

// scanAll reads every *.crumb.json file under dir. A missing directory
// (no jobs have ever run) is not an error.
func (c *CrumbStore) scanAll() ([]Crumb, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read logs dir: %w", err)
	}
	var out []Crumb
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".crumb.json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.dir, e.Name()))
		if err != nil {
			continue
		}
		var crumb Crumb
		if err := json.Unmarshal(data, &crumb); err != nil {
			continue
		}
		out = append(out, crumb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out, nil
}

// OrphanRegistry holds the breadcrumbs discovered at startup for jobs
// that the materialized state no longer (or does not yet) account for.
// Populated once via ScanAtStartup, drained via DismissOrphan as an
// operator reviews and clears each one (original_source grounding:
// crates/daemon/src/listener/query_orphans.rs).
type OrphanRegistry struct {
	crumbs *CrumbStore

	mu      sync.Mutex
	orphans []Crumb
}

// NewOrphanRegistry returns a registry backed by crumbs, empty until
// ScanAtStartup populates it.
func NewOrphanRegistry(crumbs *CrumbStore) *OrphanRegistry {
	return &OrphanRegistry{crumbs: crumbs}
}

// ScanAtStartup loads every on-disk crumb whose job id is absent from
// liveJobIDs: those jobs' breadcrumbs outlived the job record itself,
// meaning the daemon exited (or crashed) before JobDeleted/completion
// ever reached the WAL.
func (r *OrphanRegistry) ScanAtStartup(liveJobIDs map[ids.JobID]bool) error {
	crumbs, err := r.crumbs.scanAll()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphans = r.orphans[:0]
	for _, c := range crumbs {
		if !liveJobIDs[c.JobID] {
			r.orphans = append(r.orphans, c)
		}
	}
	return nil
}

// List returns every currently-pending orphan.
func (r *OrphanRegistry) List() []Crumb {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Crumb(nil), r.orphans...)
}

// Dismiss removes the orphan matching id exactly or by prefix, deleting
// its crumb file, and reports whether one was found.
func (r *OrphanRegistry) Dismiss(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.orphans {
		if string(c.JobID) == id || strings.HasPrefix(string(c.JobID), id) {
			removed := c
			r.orphans = append(r.orphans[:i], r.orphans[i+1:]...)
			_ = r.crumbs.Delete(removed.JobID)
			return true
		}
	}
	return false
}
