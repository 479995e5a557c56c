package auditstream_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/analystcopilot/core/pkg/auditstream"
)

func newMockPublisher(t *testing.T) (*auditstream.Publisher, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })
	db := sqlx.NewDb(mockDB, "pgx")
	return auditstream.NewPublisher(db), mock
}

func TestPublishWorkflowStatusPersistsThenNotifiesBothChannels(t *testing.T) {
	p, mock := newMockPublisher(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO stream_events`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_notify($1, $2)`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_notify($1, $2)`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := p.PublishWorkflowStatus(context.Background(), "wf-1", auditstream.WorkflowStatusPayload{
		Status: "completed",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishIngestProgressIsNotifyOnly(t *testing.T) {
	p, mock := newMockPublisher(t)

	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_notify($1, $2)`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := p.PublishIngestProgress(context.Background(), "job-1", auditstream.IngestProgressPayload{
		ProcessedChunks: 5, TotalChunks: 10,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishWorkflowStatusRollsBackOnInsertFailure(t *testing.T) {
	p, mock := newMockPublisher(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO stream_events`)).
		WillReturnError(errors.New("insert failed"))
	mock.ExpectRollback()

	err := p.PublishWorkflowStatus(context.Background(), "wf-1", auditstream.WorkflowStatusPayload{Status: "failed"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
