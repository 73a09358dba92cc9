package usage

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVLogRecordAndExport(t *testing.T) {
	ctx := context.Background()
	log := NewCSVLog(filepath.Join(t.TempDir(), "data", "usage_log.csv"))
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, log.Record(ctx, Entry{Time: ts, UserID: 7, Username: "ann", Action: ActionConvert, Input: "list, final.txt", Outputs: 3, Sent: 2, Failed: 1}))
	require.NoError(t, log.Record(ctx, Entry{Time: ts.Add(time.Minute), UserID: 8, Action: ActionMerge, Outputs: 1, Sent: 1}))

	var buf bytes.Buffer
	require.NoError(t, log.Export(ctx, &buf))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3, "header is written once")
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"2024-05-01T10:00:00Z", "7", "ann", "convert", "list, final.txt", "3", "2", "1"}, rows[1])
	assert.Equal(t, "merge", rows[2][3])
}

func TestCSVLogExportMissingFile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSVLog(filepath.Join(t.TempDir(), "none.csv")).Export(context.Background(), &buf))
	assert.Equal(t, "timestamp,user_id,username,action,input,outputs,sent,failed\n", buf.String())
}
