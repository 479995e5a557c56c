package ingest

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/audit"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/analystcopilot/core/pkg/store"
)

// fakeAuditStore captures every appended entry without touching a database,
// satisfying audit.Store directly since it's an interface.
type fakeAuditStore struct {
	entries []*models.AuditLogEntry
}

func (f *fakeAuditStore) LastEntry(context.Context) (*models.AuditLogEntry, error) { return nil, nil }

func (f *fakeAuditStore) Insert(_ context.Context, e *models.AuditLogEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAuditStore) List(context.Context, int) ([]*models.AuditLogEntry, error) { return nil, nil }

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeAuditStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	db := sqlx.NewDb(mockDB, "pgx")
	jobs := store.NewIngestJobRepo(db)

	auditStore := &fakeAuditStore{}
	chain := audit.New(auditStore)

	c := New(DefaultConfig(), nil, nil, nil, nil, nil, jobs, nil, chain)
	return c, auditStore, mock
}

func TestFailRecordsIngestFailOnly(t *testing.T) {
	c, auditStore, mock := newTestCoordinator(t)
	job := &models.IngestJob{ID: "job-1", Uploader: "u-1"}

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE ingest_jobs SET status = $2, error_message = $3, completed_at = now()`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := c.fail(context.Background(), job, apperrors.New(apperrors.KindDependency, "embedding service unavailable"))
	require.Error(t, err)

	require.Len(t, auditStore.entries, 1)
	require.Equal(t, models.ActionIngestFail, auditStore.entries[0].Action)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailRecordsSecurityViolationAlongsideIngestFailForPathTraversal(t *testing.T) {
	c, auditStore, mock := newTestCoordinator(t)
	job := &models.IngestJob{ID: "job-2", Uploader: "u-1"}

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE ingest_jobs SET status = $2, error_message = $3, completed_at = now()`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := c.fail(context.Background(), job, apperrors.New(apperrors.KindPathTraversal, "zip: entry escapes the archive root"))
	require.Error(t, err)

	require.Len(t, auditStore.entries, 2)
	require.Equal(t, models.ActionIngestFail, auditStore.entries[0].Action)
	require.Equal(t, models.ActionSecurityViolation, auditStore.entries[1].Action)
	require.Equal(t, models.SeverityHigh, auditStore.entries[1].Severity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFailRecordsSecurityViolationForXMLSecurityError(t *testing.T) {
	c, auditStore, mock := newTestCoordinator(t)
	job := &models.IngestJob{ID: "job-3", Uploader: "u-1"}

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE ingest_jobs SET status = $2, error_message = $3, completed_at = now()`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := c.fail(context.Background(), job, apperrors.New(apperrors.KindXMLSecurity, "wiki_xml: DOCTYPE declarations are not permitted"))
	require.Error(t, err)
	require.Len(t, auditStore.entries, 2)
	require.Equal(t, models.ActionSecurityViolation, auditStore.entries[1].Action)
	require.NoError(t, mock.ExpectationsWereMet())
}
