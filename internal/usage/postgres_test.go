package usage

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockLog(t *testing.T) (*PostgresLog, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewPostgresLog(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgresRecord(t *testing.T) {
	l, mock := newMockLog(t)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	mock.ExpectExec(`INSERT INTO usage_log`).
		WithArgs(at.UTC(), int64(42), "ann", ActionConvert, "list.txt", 2, 1, 1).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, l.Record(context.Background(), Entry{
		Time: at, UserID: 42, Username: "ann", Action: ActionConvert,
		Input: "list.txt", Outputs: 2, Sent: 1, Failed: 1,
	}))
}

func TestPostgresRecordError(t *testing.T) {
	l, mock := newMockLog(t)
	boom := errors.New("boom")
	mock.ExpectExec(`INSERT INTO usage_log`).WillReturnError(boom)

	err := l.Record(context.Background(), Entry{Time: time.Now(), Action: ActionMerge})
	assert.ErrorIs(t, err, boom)
}

func TestPostgresExport(t *testing.T) {
	l, mock := newMockLog(t)
	cols := []string{"logged_at", "user_id", "username", "action", "input_name", "outputs", "sent", "failed"}
	mock.ExpectQuery(`SELECT .* FROM usage_log ORDER BY id`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC), int64(42), "ann", ActionConvert, "list.txt", 2, 2, 0))

	var buf bytes.Buffer
	require.NoError(t, l.Export(context.Background(), &buf))
	assert.Equal(t,
		"timestamp,user_id,username,action,input,outputs,sent,failed\n"+
			"2024-03-01T05:00:00Z,42,ann,"+ActionConvert+",list.txt,2,2,0\n",
		buf.String())
}
