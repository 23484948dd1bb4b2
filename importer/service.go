package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"clinicsync/attribution"
	"clinicsync/backup"
	"clinicsync/batch"
	"clinicsync/crm"
	"clinicsync/internal/classify"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	ActionImport   = "import"
	ActionRollback = "rollback"

	StatusSucceeded = "succeeded"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// LogEntry is one append-only audit record of an import or rollback.
type LogEntry struct {
	ID           string        `json:"id"`
	Action       string        `json:"action"`
	Kind         crm.Kind      `json:"kind"`
	File         string        `json:"file"`
	Total        int           `json:"total"`
	Imported     int           `json:"imported"`
	Updated      int           `json:"updated"`
	Duplicates   int           `json:"duplicates"`
	Skipped      int           `json:"skipped"`
	Errors       int           `json:"errors"`
	Duration     time.Duration `json:"duration"`
	Recalculated bool          `json:"recalculated"`
	RecalcError  string        `json:"recalcError,omitempty"`
	BackupID     string        `json:"backupId,omitempty"`
	Status       string        `json:"status"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

type AuditSink interface {
	AppendImportLog(ctx context.Context, entry LogEntry) error
}

type RecalcResult struct {
	Scored   int           `json:"scored"`
	Duration time.Duration `json:"duration"`
}

// RecordCounter reports how many rows a table currently holds.
type RecordCounter interface {
	CountRecords(ctx context.Context, table string) (int64, error)
}

// Recalculator refreshes derived data after transaction imports.
type Recalculator interface {
	Recalculate(ctx context.Context, kind crm.Kind) (RecalcResult, error)
}

// Dependencies are the collaborators a Service reads from and writes to.
// Recalculator may be nil.
type Dependencies struct {
	Identities   classify.IdentitySource
	Writer       batch.Writer
	Directory    attribution.Directory
	Backups      *backup.Manager
	// Records, when set, lets runs skip the backup of an empty table.
	Records      RecordCounter
	Audit        AuditSink
	Recalculator Recalculator
}

type Options struct {
	OperatorUserID int64
	IndexPageSize  int
	MessageLimit   int
	Batch          batch.Options
	Logger         *logrus.Entry
}

// Service runs import sessions. It holds at most one running import or
// rollback at a time.
type Service struct {
	deps    Dependencies
	options Options
	log     *logrus.Entry
	running sync.Mutex
	now     func() time.Time
}

func NewService(deps Dependencies, options Options) *Service {
	log := options.Logger
	if log == nil {
		log = logrusNop()
	}
	if options.Batch.Logger == nil {
		options.Batch.Logger = log
	}
	return &Service{deps: deps, options: options, log: log, now: time.Now}
}

// Session is one file being prepared for import: its loaded sheet and the
// current column mapping.
type Session struct {
	Kind     crm.Kind
	Filename string
	Sheets   []string
	Sheet    Sheet
	Schema   Schema

	mapping ColumnMapping
}

// Open loads filename, reads sheetName (first sheet when empty) and proposes
// a column mapping.
func (s *Service) Open(_ context.Context, kind crm.Kind, filename string, data []byte, sheetName string) (*Session, error) {
	schema, err := SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	sheet, names, err := LoadSheet(filename, data, sheetName)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"kind": kind, "file": filename, "sheet": sheet.Name, "rows": len(sheet.Rows)}).Debug("source loaded")
	return &Session{
		Kind:     kind,
		Filename: filename,
		Sheets:   names,
		Sheet:    sheet,
		Schema:   schema,
		mapping:  AutoMap(sheet.Headers, schema),
	}, nil
}

func (s *Session) Mapping() ColumnMapping {
	return s.mapping.Clone()
}

// SetMapping overrides one field; an empty header unmaps it.
func (s *Session) SetMapping(field, header string) error {
	if _, ok := s.Schema.Field(field); !ok {
		return fmt.Errorf("unknown field %q for %s", field, s.Kind)
	}
	if header != "" && !hasSheet(s.Sheet.Headers, header) {
		return fmt.Errorf("field %s: header %q not present in sheet %s", field, header, s.Sheet.Name)
	}
	s.mapping.Set(field, header)
	return nil
}

// ApplyMapping replaces several entries at once, as sent by a host UI. The
// overrides apply together or not at all.
func (s *Session) ApplyMapping(overrides map[string]string) error {
	next := s.mapping.Clone()
	for field, header := range overrides {
		next.Set(field, header)
	}
	if err := next.Check(s.Schema, s.Sheet.Headers); err != nil {
		return fmt.Errorf("sheet %s: %w", s.Sheet.Name, err)
	}
	s.mapping = next
	return nil
}

func (s *Service) lookups(ctx context.Context, kind crm.Kind) (Lookups, error) {
	if kind == crm.KindPersona {
		index, err := classify.LoadIndex(ctx, s.deps.Identities, s.options.IndexPageSize)
		if err != nil {
			return Lookups{}, fmt.Errorf("build identity index: %w", err)
		}
		return Lookups{Index: index}, nil
	}
	resolver, err := attribution.Load(ctx, s.deps.Directory, s.options.OperatorUserID)
	if err != nil {
		return Lookups{}, fmt.Errorf("load attribution directory: %w", err)
	}
	return Lookups{Resolver: resolver}, nil
}

// Validate checks the session's rows against fresh lookups. Nothing is written.
func (s *Service) Validate(ctx context.Context, session *Session) (*ValidationResult, error) {
	lookups, err := s.lookups(ctx, session.Kind)
	if err != nil {
		return nil, err
	}
	return Validate(session.Schema, session.Sheet.Rows, session.mapping, lookups, s.options.MessageLimit)
}

type RunOptions struct {
	Backup      bool
	Recalculate bool
	OnProgress  func(batch.Progress)
}

// Report is what the operator sees after a run.
type Report struct {
	ID           string        `json:"id"`
	Kind         crm.Kind      `json:"kind"`
	File         string        `json:"file"`
	Sheet        string        `json:"sheet"`
	Stats        batch.Stats   `json:"stats"`
	Issues       []Issue       `json:"issues"`
	IssueCount   int           `json:"issueCount"`
	BackupID     string        `json:"backupId,omitempty"`
	Recalculated bool          `json:"recalculated"`
	Recalc       RecalcResult  `json:"recalc"`
	RecalcError  string        `json:"recalcError,omitempty"`
	Status       string        `json:"status"`
	Duration     time.Duration `json:"duration"`
}

// Run imports the session. Unreadable input, an incomplete mapping, a
// failed backup or a concurrent run stop it before anything is written;
// row and batch failures are counted in the report instead.
func (s *Service) Run(ctx context.Context, session *Session, options RunOptions) (*Report, error) {
	if !s.running.TryLock() {
		return nil, ErrImportInProgress
	}
	defer s.running.Unlock()

	started := s.now()
	report := &Report{
		ID:     uuid.NewString(),
		Kind:   session.Kind,
		File:   session.Filename,
		Sheet:  session.Sheet.Name,
		Issues: []Issue{},
	}
	log := s.log.WithFields(logrus.Fields{"kind": session.Kind, "file": session.Filename, "import_id": report.ID})

	fail := func(err error) (*Report, error) {
		report.Status = StatusFailed
		report.Duration = s.now().Sub(started)
		s.appendLog(ctx, s.logEntry(ActionImport, report, err))
		importRuns.WithLabelValues(ActionImport, StatusFailed).Inc()
		log.WithError(err).Error("import aborted")
		return report, err
	}

	if err := session.mapping.Require(session.Schema); err != nil {
		return fail(err)
	}

	lookups, err := s.lookups(ctx, session.Kind)
	if err != nil {
		return fail(err)
	}
	p, err := buildPlan(session.Schema, session.Sheet.Rows, session.mapping, lookups, session.Filename, s.options.MessageLimit)
	if err != nil {
		return fail(err)
	}

	table := session.Kind.Table()
	if options.Backup && p.rowsToWrite() > 0 {
		backupID, err := s.backupBeforeWrite(ctx, session, table)
		report.BackupID = backupID
		if err != nil {
			return fail(err)
		}
	}

	inserts, updates := p.writes()
	executor := batch.NewExecutor(s.deps.Writer, s.options.Batch)
	stats := executor.Execute(ctx, table, inserts, updates, options.OnProgress)
	stats.Total = len(session.Sheet.Rows)
	stats.Skipped = p.skipped
	stats.Duplicates = p.merged
	stats.Errors += p.invalid
	report.Stats = stats

	issues := newIssueList(s.options.MessageLimit)
	for _, issue := range p.errors.items {
		issues.add(issue)
	}
	for _, failure := range stats.Failures {
		issues.add(Issue{Code: CodeBatchWriteFailed, Message: failure.Error()})
	}
	report.Issues = issues.items
	report.IssueCount = p.errors.count + len(stats.Failures)

	if session.Kind.IsTransaction() && options.Recalculate && s.deps.Recalculator != nil && stats.New+stats.Updated > 0 {
		result, recalcErr := s.deps.Recalculator.Recalculate(ctx, session.Kind)
		if recalcErr != nil {
			// The import stays committed; only the report degrades.
			report.RecalcError = recalcErr.Error()
			log.WithError(recalcErr).Warn("post-import recalculation failed")
		} else {
			report.Recalculated = true
			report.Recalc = result
		}
	}

	report.Status = runStatus(stats)
	report.Duration = s.now().Sub(started)
	s.appendLog(ctx, s.logEntry(ActionImport, report, nil))
	observeReport(report)

	log.WithFields(logrus.Fields{
		"new":        stats.New,
		"updated":    stats.Updated,
		"skipped":    stats.Skipped,
		"duplicates": stats.Duplicates,
		"errors":     stats.Errors,
		"status":     report.Status,
	}).Info("import finished")
	return report, nil
}

// backupBeforeWrite snapshots table unless it holds no rows yet. It returns
// the backup id, empty when nothing was backed up.
func (s *Service) backupBeforeWrite(ctx context.Context, session *Session, table string) (string, error) {
	if s.deps.Backups == nil {
		return "", fmt.Errorf("%w: no backup manager configured", backup.ErrBackupIncomplete)
	}
	if s.deps.Records != nil {
		stored, err := s.deps.Records.CountRecords(ctx, table)
		if err != nil {
			return "", fmt.Errorf("%w: count %s: %w", backup.ErrBackupIncomplete, table, err)
		}
		if stored == 0 {
			s.log.WithField("table", table).Debug("table empty, backup skipped")
			return "", nil
		}
	}
	artifact, err := s.deps.Backups.Create(ctx, fmt.Sprintf("before %s import of %s", session.Kind, session.Filename), []string{table})
	return artifact.ID, err
}

func runStatus(stats batch.Stats) string {
	switch {
	case stats.New+stats.Updated == 0 && (stats.Errors > 0 || stats.NotAttempted > 0):
		return StatusFailed
	case stats.Errors > 0 || stats.NotAttempted > 0:
		return StatusPartial
	default:
		return StatusSucceeded
	}
}

// writes converts the plan into column sets: full rows for inserts and sparse
// overlays for updates.
func (p *plan) writes() ([]crm.Columns, []batch.Update) {
	var inserts []crm.Columns
	switch p.kind {
	case crm.KindPersona:
		inserts = make([]crm.Columns, 0, len(p.inserts))
		for _, persona := range p.inserts {
			inserts = append(inserts, persona.Columns())
		}
	default:
		inserts = make([]crm.Columns, 0, len(p.sales))
		for _, sale := range p.sales {
			inserts = append(inserts, sale.Columns())
		}
	}

	updates := make([]batch.Update, 0, len(p.updates))
	for _, update := range p.updates {
		fields := update.persona.SparseColumns()
		if len(fields) == 0 {
			continue
		}
		updates = append(updates, batch.Update{ID: update.id, Fields: fields})
	}
	return inserts, updates
}

// Rollback restores a backup and records the rollback as a new log entry.
func (s *Service) Rollback(ctx context.Context, backupID string) (backup.Artifact, error) {
	if !s.running.TryLock() {
		return backup.Artifact{}, ErrImportInProgress
	}
	defer s.running.Unlock()

	started := s.now()
	artifact, err := s.deps.Backups.Restore(ctx, backupID)

	entry := LogEntry{
		ID:        uuid.NewString(),
		Action:    ActionRollback,
		File:      artifact.Name,
		BackupID:  backupID,
		Status:    StatusSucceeded,
		Duration:  s.now().Sub(started),
		CreatedAt: s.now().UTC(),
	}
	for _, rows := range artifact.RowCounts {
		entry.Total += int(rows)
	}
	if err != nil {
		entry.Status = StatusFailed
		entry.Error = err.Error()
	}
	s.appendLog(ctx, entry)
	importRuns.WithLabelValues(ActionRollback, entry.Status).Inc()

	if err != nil {
		s.log.WithError(err).WithField("backup_id", backupID).Error("rollback failed")
		return artifact, err
	}
	return artifact, nil
}

func (s *Service) logEntry(action string, report *Report, runErr error) LogEntry {
	entry := LogEntry{
		ID:           report.ID,
		Action:       action,
		Kind:         report.Kind,
		File:         report.File,
		Total:        report.Stats.Total,
		Imported:     report.Stats.New,
		Updated:      report.Stats.Updated,
		Duplicates:   report.Stats.Duplicates,
		Skipped:      report.Stats.Skipped,
		Errors:       report.Stats.Errors,
		Duration:     report.Duration,
		Recalculated: report.Recalculated,
		RecalcError:  report.RecalcError,
		BackupID:     report.BackupID,
		Status:       report.Status,
		CreatedAt:    s.now().UTC(),
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	return entry
}

func (s *Service) appendLog(ctx context.Context, entry LogEntry) {
	if s.deps.Audit == nil {
		return
	}
	// The log must be written even when the run's context was cancelled.
	if err := s.deps.Audit.AppendImportLog(context.WithoutCancel(ctx), entry); err != nil {
		s.log.WithError(err).WithField("log_id", entry.ID).Error("could not append import log")
	}
}

// IsFatal reports whether err stopped a run before any write.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnreadableSource) ||
		errors.Is(err, ErrMappingIncomplete) ||
		errors.Is(err, backup.ErrBackupIncomplete) ||
		errors.Is(err, ErrImportInProgress)
}

func logrusNop() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}
