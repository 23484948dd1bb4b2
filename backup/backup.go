package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrBackupIncomplete is returned when a backup did not reach completed.
	ErrBackupIncomplete = errors.New("backup incomplete")
	// ErrRollbackConflict is returned when restoring a restored or expired backup.
	ErrRollbackConflict = errors.New("rollback conflict")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
	StatusRestored  Status = "restored"
)

const DefaultRetention = 7 * 24 * time.Hour

// Artifact describes one backup and where it is in its lifecycle:
// pending -> completed -> expired | restored.
type Artifact struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Tables      []string         `json:"tables"`
	RowCounts   map[string]int64 `json:"rowCounts"`
	Status      Status           `json:"status"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	ExpiresAt   time.Time        `json:"expiresAt"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
	RestoredAt  *time.Time       `json:"restoredAt,omitempty"`
}

// Restorable reports whether the artifact may still be used for a rollback at now.
func (a Artifact) Restorable(now time.Time) bool {
	return a.Status == StatusCompleted && now.Before(a.ExpiresAt)
}

// Store persists artifacts and the table snapshots behind them.
type Store interface {
	CreateBackup(ctx context.Context, artifact Artifact) error
	SaveBackup(ctx context.Context, artifact Artifact) error
	GetBackup(ctx context.Context, id string) (Artifact, error)
	ListBackups(ctx context.Context) ([]Artifact, error)
	SnapshotTable(ctx context.Context, backupID, table string) (int64, error)
	RestoreTables(ctx context.Context, backupID string, tables []string) error
}

type Manager struct {
	store     Store
	retention time.Duration
	log       *logrus.Entry
	now       func() time.Time
}

func NewManager(store Store, retention time.Duration, log *logrus.Entry) *Manager {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if log == nil {
		log = logrusNop()
	}
	return &Manager{store: store, retention: retention, log: log, now: time.Now}
}

// Create records a pending artifact, snapshots every table and only then
// marks the artifact completed. On any failure the artifact stays pending
// and ErrBackupIncomplete is returned.
func (m *Manager) Create(ctx context.Context, name string, tables []string) (Artifact, error) {
	now := m.now().UTC()
	artifact := Artifact{
		ID:        uuid.NewString(),
		Name:      name,
		Tables:    append([]string(nil), tables...),
		RowCounts: make(map[string]int64, len(tables)),
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(m.retention),
	}
	log := m.log.WithFields(logrus.Fields{"backup_id": artifact.ID, "tables": tables})

	if err := m.store.CreateBackup(ctx, artifact); err != nil {
		return artifact, fmt.Errorf("%w: record pending backup: %w", ErrBackupIncomplete, err)
	}

	for _, table := range artifact.Tables {
		rows, err := m.store.SnapshotTable(ctx, artifact.ID, table)
		if err != nil {
			artifact.Error = err.Error()
			if saveErr := m.store.SaveBackup(ctx, artifact); saveErr != nil {
				log.WithError(saveErr).Warn("could not record backup failure")
			}
			log.WithError(err).WithField("table", table).Error("backup snapshot failed")
			return artifact, fmt.Errorf("%w: snapshot %s: %w", ErrBackupIncomplete, table, err)
		}
		artifact.RowCounts[table] = rows
	}

	completedAt := m.now().UTC()
	artifact.Status = StatusCompleted
	artifact.CompletedAt = &completedAt
	if err := m.store.SaveBackup(ctx, artifact); err != nil {
		artifact.Status = StatusPending
		artifact.CompletedAt = nil
		return artifact, fmt.Errorf("%w: mark backup completed: %w", ErrBackupIncomplete, err)
	}

	log.WithField("rows", artifact.RowCounts).Info("backup completed")
	return artifact, nil
}

// Restore replaces the current rows of the artifact's tables with its
// snapshot. A backup can be restored once; expired backups are refused.
func (m *Manager) Restore(ctx context.Context, id string) (Artifact, error) {
	artifact, err := m.store.GetBackup(ctx, id)
	if err != nil {
		return Artifact{}, err
	}
	now := m.now().UTC()

	switch artifact.Status {
	case StatusRestored:
		return artifact, fmt.Errorf("%w: backup %s was already restored", ErrRollbackConflict, id)
	case StatusExpired:
		return artifact, fmt.Errorf("%w: backup %s has expired", ErrRollbackConflict, id)
	case StatusPending:
		return artifact, fmt.Errorf("%w: backup %s never completed", ErrBackupIncomplete, id)
	}
	if !artifact.Restorable(now) {
		artifact.Status = StatusExpired
		if saveErr := m.store.SaveBackup(ctx, artifact); saveErr != nil {
			m.log.WithError(saveErr).WithField("backup_id", id).Warn("could not mark backup expired")
		}
		return artifact, fmt.Errorf("%w: backup %s expired at %s", ErrRollbackConflict, id, artifact.ExpiresAt.Format(time.RFC3339))
	}

	if err := m.store.RestoreTables(ctx, artifact.ID, artifact.Tables); err != nil {
		return artifact, fmt.Errorf("restore backup %s: %w", id, err)
	}

	artifact.Status = StatusRestored
	artifact.RestoredAt = &now
	if err := m.store.SaveBackup(ctx, artifact); err != nil {
		return artifact, fmt.Errorf("mark backup %s restored: %w", id, err)
	}

	m.log.WithFields(logrus.Fields{"backup_id": id, "tables": artifact.Tables}).Warn("backup restored")
	return artifact, nil
}

// ExpireStale marks completed backups past their retention as expired. The
// artifacts and their snapshots are kept for audit.
func (m *Manager) ExpireStale(ctx context.Context) (int, error) {
	artifacts, err := m.store.ListBackups(ctx)
	if err != nil {
		return 0, fmt.Errorf("list backups: %w", err)
	}
	now := m.now().UTC()
	expired := 0
	for _, artifact := range artifacts {
		if artifact.Status != StatusCompleted || now.Before(artifact.ExpiresAt) {
			continue
		}
		artifact.Status = StatusExpired
		if err := m.store.SaveBackup(ctx, artifact); err != nil {
			return expired, fmt.Errorf("expire backup %s: %w", artifact.ID, err)
		}
		expired++
	}
	if expired > 0 {
		m.log.WithField("count", expired).Info("expired stale backups")
	}
	return expired, nil
}

// List returns artifacts newest first. With notExpired set, expired ones and
// those past their retention are left out.
func (m *Manager) List(ctx context.Context, notExpired bool) ([]Artifact, error) {
	artifacts, err := m.store.ListBackups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	if !notExpired {
		return artifacts, nil
	}
	now := m.now().UTC()
	filtered := make([]Artifact, 0, len(artifacts))
	for _, artifact := range artifacts {
		if artifact.Status == StatusExpired || !now.Before(artifact.ExpiresAt) {
			continue
		}
		filtered = append(filtered, artifact)
	}
	return filtered, nil
}

func (m *Manager) Get(ctx context.Context, id string) (Artifact, error) {
	return m.store.GetBackup(ctx, id)
}

func logrusNop() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}
