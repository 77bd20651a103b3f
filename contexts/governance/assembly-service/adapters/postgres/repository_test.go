package postgresadapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"condominia/contexts/governance/assembly-service/domain/entities"
	domainerrors "condominia/contexts/governance/assembly-service/domain/errors"
	"condominia/contexts/governance/assembly-service/ports"
	"condominia/internal/platform/tenancy"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return db, mock
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	db, mock := newMockDB(t)
	return NewRepository(db, "torre_norte", quietLogger()), mock
}

func closeTransition() ports.StatusTransition {
	ended := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	return ports.StatusTransition{
		AssemblyID: "asm-1",
		From:       []entities.AssemblyStatus{entities.AssemblyStatusInProgress},
		To:         entities.AssemblyStatusCompleted,
		EndedAt:    &ended,
		UpdatedAt:  ended,
	}
}

func TestTransitionAssemblyReportsLostCompareAndSwap(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "torre_norte"."assemblies" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "torre_norte"."assemblies"`)).
		WithArgs("asm-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, err := repo.TransitionAssembly(context.Background(), closeTransition())
	assert.Equal(t, domainerrors.KindInvalidTransition, domainerrors.KindOf(err))

	var rejection *domainerrors.Rejection
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, "asm-1", rejection.AssemblyID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionAssemblyReportsMissingAssembly(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "torre_norte"."assemblies" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "torre_norte"."assemblies"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, err := repo.TransitionAssembly(context.Background(), closeTransition())
	assert.True(t, errors.Is(err, domainerrors.ErrAssemblyNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAssemblyMapsDriverFailures(t *testing.T) {
	t.Run("missing row", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "torre_norte"."assemblies" WHERE id = $1`)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.GetAssembly(context.Background(), " asm-1 ")
		assert.Equal(t, domainerrors.KindNotFound, domainerrors.KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unprovisioned namespace", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "torre_norte"."assemblies"`)).
			WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "torre_norte.assemblies" does not exist`})

		_, err := repo.GetAssembly(context.Background(), "asm-1")
		assert.True(t, domainerrors.Retryable(err))
		assert.Equal(t, domainerrors.KindStorageUnavailable, domainerrors.KindOf(err))
	})

	t.Run("connection failure", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "torre_norte"."assemblies"`)).
			WillReturnError(errors.New("connection reset by peer"))

		_, err := repo.GetAssembly(context.Background(), "asm-1")
		assert.True(t, domainerrors.Retryable(err))
	})
}

func TestInsertVoteMapsUniqueViolationToDuplicate(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "torre_norte"."votes"`)).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "votes_identity_uidx"})

	err := repo.InsertVote(context.Background(), entities.Vote{
		VoteID:        "vote-1",
		AssemblyID:    "asm-1",
		TenantKey:     "torre-norte",
		AgendaNumeral: 1,
		ResidentID:    "res-a",
		Choice:        entities.ChoiceYes,
		Weight:        1,
		CastBy:        "res-a",
		CastAt:        time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC),
	})
	assert.True(t, errors.Is(err, domainerrors.ErrDuplicateVote))
	assert.False(t, domainerrors.Retryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEligibleResidentsReadsActiveRows(t *testing.T) {
	repo, mock := newMockRepository(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "torre_norte"."residents" WHERE active = $1 ORDER BY resident_id ASC`)).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"resident_id", "unit_id", "weight", "active"}).
			AddRow("res-a", "101", 1.0, true).
			AddRow("res-b", "102", 2.0, true))

	residents, err := repo.ListEligibleResidents(context.Background())
	require.NoError(t, err)
	require.Len(t, residents, 2)
	assert.Equal(t, "res-b", residents[1].ResidentID)
	assert.Equal(t, 2.0, residents[1].Weight)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkOutboxPublishedRequiresRow(t *testing.T) {
	db, mock := newMockDB(t)
	journal := NewJournal(db, quietLogger())

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "public"."governance_outbox" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := journal.MarkOutboxPublished(context.Background(), "evt-1", time.Now())
	assert.True(t, domainerrors.Retryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisionerRunsTenantDDL(t *testing.T) {
	db, mock := newMockDB(t)
	for range tenantDDL {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	conn, err := tenancy.PostgresConnector{Shared: db}.Open(context.Background(), tenancy.Tenant{TenantKey: "torre-norte", Schema: "torre_norte"})
	require.NoError(t, err)

	err = Provisioner{Logger: quietLogger()}.Provision(context.Background(), tenancy.Tenant{TenantKey: "torre-norte", Schema: "torre_norte"}, conn)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisionerRejectsForeignConnections(t *testing.T) {
	err := Provisioner{Logger: quietLogger()}.Provision(context.Background(), tenancy.Tenant{TenantKey: "torre-norte", Schema: "torre_norte"}, tenancy.MemoryConnection{})
	assert.Error(t, err)
}

func TestReleaseEventDeletesReservation(t *testing.T) {
	db, mock := newMockDB(t)
	journal := NewJournal(db, quietLogger())

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "public"."governance_event_dedup" WHERE event_id = $1`)).
		WithArgs("evt-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, journal.ReleaseEvent(context.Background(), " evt-1 "))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertAttendanceClearsVerificationOnDelegateChange(t *testing.T) {
	repo, mock := newMockRepository(t)
	at := time.Date(2026, 3, 1, 19, 5, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "torre_norte"."attendance_records"`) +
		`.*ON CONFLICT .*` +
		regexp.QuoteMeta(`CASE WHEN attendance_records.delegate_name IS DISTINCT FROM EXCLUDED.delegate_name THEN false ELSE attendance_records.verified END`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "torre_norte"."attendance_records"`)).
		WillReturnRows(sqlmock.NewRows([]string{"assembly_id", "resident_id", "tenant_key", "delegate_name", "confirmed", "confirmed_at", "verified", "verified_by"}).
			AddRow("asm-1", "res-c", "torre-norte", "Bruno", true, at, false, ""))

	stored, err := repo.UpsertAttendance(context.Background(), entities.AttendanceRecord{
		AssemblyID:   "asm-1",
		TenantKey:    "torre-norte",
		ResidentID:   "res-c",
		DelegateName: "Bruno",
		ConfirmedAt:  at,
		CreatedAt:    at,
		UpdatedAt:    at,
	})
	require.NoError(t, err)
	assert.Equal(t, "Bruno", stored.DelegateName)
	assert.False(t, stored.CanVote())
	assert.NoError(t, mock.ExpectationsWereMet())
}
