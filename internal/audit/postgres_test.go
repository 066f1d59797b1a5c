package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waterlab-lims-server/internal/domain"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func TestNewPostgresStore_RequiresConnection(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_Record(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	actor := &domain.User{ID: uuid.New(), Username: "lab1"}
	event := domain.NewAuditEvent(actor, domain.AUDIT_UPDATE, "sample", "abc", "WL2026-0007",
		map[string]interface{}{"current_status": "SENT_TO_LAB"},
		map[string]interface{}{"current_status": "TESTING_IN_PROGRESS"},
	)

	mock.ExpectExec("INSERT INTO audit_trail").
		WithArgs(
			event.ID,
			event.ActorID,
			"lab1",
			"UPDATE",
			"sample",
			"abc",
			"WL2026-0007",
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			event.OccurredAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.Record(context.Background(), event)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List_WithFilters(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	eventID := uuid.New()
	occurred := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "actor_id", "actor_name", "action", "entity", "entity_id",
		"entity_label", "old_values", "new_values", "changes", "occurred_at",
	}).AddRow(
		eventID.String(), nil, "", "UPDATE", "sample", "abc",
		"WL2026-0007",
		[]byte(`{"current_status":"SENT_TO_LAB"}`),
		[]byte(`{"current_status":"TESTING_IN_PROGRESS"}`),
		[]byte(`{"current_status":{"old":"SENT_TO_LAB","new":"TESTING_IN_PROGRESS"}}`),
		occurred,
	)

	mock.ExpectQuery("SELECT (.+) FROM audit_trail WHERE entity = (.+) AND entity_id = (.+) ORDER BY occurred_at DESC").
		WithArgs("sample", "abc", defaultListLimit, 0).
		WillReturnRows(rows)

	events, err := store.List(context.Background(), Filter{Entity: "sample", EntityID: "abc"})

	require.NoError(t, err)
	require.Len(t, events, 1)
	got := events[0]
	assert.Equal(t, eventID, got.ID)
	assert.Nil(t, got.ActorID)
	assert.Equal(t, domain.AUDIT_UPDATE, got.Action)
	assert.Equal(t, "TESTING_IN_PROGRESS", got.NewValues["current_status"])
	require.Contains(t, got.Changes, "current_status")
	assert.Equal(t, "SENT_TO_LAB", got.Changes["current_status"].Old)
	assert.Equal(t, occurred, got.OccurredAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Count(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := store.Count(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
