// Package ledger persists the audit trail of agent runs, human approval
// decisions and the projects they belong to, backed by SQLite.
package ledger

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/m4xw311/trialdesk/errors"
	"github.com/m4xw311/trialdesk/session"
	_ "github.com/mattn/go-sqlite3"
)

// Run statuses. Transitions are running -> completed | failed only;
// terminal statuses are immutable.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Project is a named unit of work with its own workspace directory.
type Project struct {
	ID            string
	Name          string
	WorkspacePath string
	CreatedAt     time.Time
}

// Run is one recorded invocation of an agent.
type Run struct {
	ID           string
	ProjectID    string
	AgentKind    string
	Prompt       string
	Status       string
	Output       string
	ErrorMessage string
	StartedAt    time.Time
	CompletedAt  *time.Time
	Usage        session.Usage
}

// Approval is one human decision tied to a run. Approved is nil while
// the decision is pending.
type Approval struct {
	ID          string
	RunID       string
	Action      string
	Details     map[string]interface{}
	Approved    *bool
	Notes       string
	RequestedAt time.Time
	DecidedAt   *time.Time
}

// Store is the SQLite-backed ledger. All operations are transactional
// per call; a write failure propagates to the caller with no retry.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL UNIQUE,
	workspace_path TEXT NOT NULL,
	created_at     TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	project_id    TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	agent_kind    TEXT NOT NULL,
	prompt        TEXT NOT NULL,
	status        TEXT NOT NULL,
	output        TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMP NOT NULL,
	completed_at  TIMESTAMP,
	usage_json    TEXT NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS approvals (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	action       TEXT NOT NULL,
	details_json TEXT NOT NULL DEFAULT '{}',
	approved     INTEGER,
	notes        TEXT NOT NULL DEFAULT '',
	requested_at TIMESTAMP NOT NULL,
	decided_at   TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project_id);
CREATE INDEX IF NOT EXISTS idx_approvals_run ON approvals(run_id);
`

// Open opens (or creates) the ledger database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open ledger database '%s'", path)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to initialize ledger schema")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateProject registers a new project with its workspace directory.
func (s *Store) CreateProject(name, workspacePath string) (*Project, error) {
	p := &Project{
		ID:            uuid.NewString(),
		Name:          name,
		WorkspacePath: workspacePath,
		CreatedAt:     time.Now().UTC(),
	}
	_, err := s.db.Exec(
		`INSERT INTO projects (id, name, workspace_path, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, p.WorkspacePath, p.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create project '%s'", name)
	}
	return p, nil
}

// ProjectByName looks up a project; sql.ErrNoRows surfaces as an error.
func (s *Store) ProjectByName(name string) (*Project, error) {
	row := s.db.QueryRow(
		`SELECT id, name, workspace_path, created_at FROM projects WHERE name = ?`, name)
	var p Project
	if err := row.Scan(&p.ID, &p.Name, &p.WorkspacePath, &p.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to load project '%s'", name)
	}
	return &p, nil
}

// Projects lists every project, newest first.
func (s *Store) Projects() ([]Project, error) {
	rows, err := s.db.Query(
		`SELECT id, name, workspace_path, created_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list projects")
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.WorkspacePath, &p.CreatedAt); err != nil {
			return nil, errors.Wrapf(err, "failed to scan project row")
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project and, through cascade, its runs and
// approvals.
func (s *Store) DeleteProject(id string) error {
	if _, err := s.db.Exec(`DELETE FROM projects WHERE id = ?`, id); err != nil {
		return errors.Wrapf(err, "failed to delete project '%s'", id)
	}
	return nil
}

// BeginRun creates a run record in status running with a start timestamp
// and returns its id. The write is durable before this returns, so the
// caller may launch the agent only afterwards.
func (s *Store) BeginRun(projectID, agentKind, prompt string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, project_id, agent_kind, prompt, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, projectID, agentKind, prompt, StatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return "", errors.Wrapf(err, "failed to begin run")
	}
	return id, nil
}

// CompleteRun marks a running run completed with its output and token
// usage. Completing a run that is not in status running is an error:
// terminal statuses are immutable.
func (s *Store) CompleteRun(id, output string, usage *session.Usage) error {
	usageJSON := "{}"
	if usage != nil {
		data, err := json.Marshal(usage)
		if err != nil {
			return errors.Wrapf(err, "failed to serialize token usage")
		}
		usageJSON = string(data)
	}
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, output = ?, completed_at = ?, usage_json = ? WHERE id = ? AND status = ?`,
		StatusCompleted, output, time.Now().UTC(), usageJSON, id, StatusRunning,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to complete run '%s'", id)
	}
	return requireTransition(res, id)
}

// FailRun marks a running run failed with its diagnostic text.
func (s *Store) FailRun(id, errMsg string) error {
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, error_message = ?, completed_at = ? WHERE id = ? AND status = ?`,
		StatusFailed, errMsg, time.Now().UTC(), id, StatusRunning,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to mark run '%s' failed", id)
	}
	return requireTransition(res, id)
}

func requireTransition(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "failed to check run update")
	}
	if n == 0 {
		return errors.New("run '%s' is not in a running state; terminal statuses are immutable", id)
	}
	return nil
}

// Run loads one run by id.
func (s *Store) Run(id string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, project_id, agent_kind, prompt, status, output, error_message, started_at, completed_at, usage_json
		 FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load run '%s'", id)
	}
	return r, nil
}

// RunsForProject lists a project's runs, newest first.
func (s *Store) RunsForProject(projectID string) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT id, project_id, agent_kind, prompt, status, output, error_message, started_at, completed_at, usage_json
		 FROM runs WHERE project_id = ? ORDER BY started_at DESC`, projectID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list runs for project '%s'", projectID)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to scan run row")
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var completedAt sql.NullTime
	var usageJSON string
	if err := row.Scan(&r.ID, &r.ProjectID, &r.AgentKind, &r.Prompt, &r.Status,
		&r.Output, &r.ErrorMessage, &r.StartedAt, &completedAt, &usageJSON); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		r.CompletedAt = &t
	}
	if usageJSON != "" {
		if err := json.Unmarshal([]byte(usageJSON), &r.Usage); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

// RecordApproval creates a pending approval record tied to a run and
// returns its id.
func (s *Store) RecordApproval(runID, action string, details map[string]interface{}) (string, error) {
	detailsJSON := "{}"
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return "", errors.Wrapf(err, "failed to serialize approval details")
		}
		detailsJSON = string(data)
	}
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO approvals (id, run_id, action, details_json, requested_at) VALUES (?, ?, ?, ?, ?)`,
		id, runID, action, detailsJSON, time.Now().UTC(),
	)
	if err != nil {
		return "", errors.Wrapf(err, "failed to record approval")
	}
	return id, nil
}

// DecideApproval records the human decision. A decided approval is
// immutable, so the update only applies while the decision is pending.
func (s *Store) DecideApproval(id string, approved bool, notes string) error {
	res, err := s.db.Exec(
		`UPDATE approvals SET approved = ?, notes = ?, decided_at = ? WHERE id = ? AND approved IS NULL`,
		approved, notes, time.Now().UTC(), id,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to decide approval '%s'", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "failed to check approval update")
	}
	if n == 0 {
		return errors.New("approval '%s' is already decided", id)
	}
	return nil
}

// Approvals lists a run's approvals in request order.
func (s *Store) Approvals(runID string) ([]Approval, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, action, details_json, approved, notes, requested_at, decided_at
		 FROM approvals WHERE run_id = ? ORDER BY requested_at ASC`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list approvals for run '%s'", runID)
	}
	defer rows.Close()

	var approvals []Approval
	for rows.Next() {
		var a Approval
		var detailsJSON string
		var approved sql.NullBool
		var decidedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.RunID, &a.Action, &detailsJSON, &approved, &a.Notes, &a.RequestedAt, &decidedAt); err != nil {
			return nil, errors.Wrapf(err, "failed to scan approval row")
		}
		if detailsJSON != "" {
			if err := json.Unmarshal([]byte(detailsJSON), &a.Details); err != nil {
				return nil, errors.Wrapf(err, "failed to parse approval details")
			}
		}
		if approved.Valid {
			v := approved.Bool
			a.Approved = &v
		}
		if decidedAt.Valid {
			t := decidedAt.Time
			a.DecidedAt = &t
		}
		approvals = append(approvals, a)
	}
	return approvals, rows.Err()
}
