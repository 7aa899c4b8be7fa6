package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWhereClausePostgresPlaceholders(t *testing.T) {
	cutoff := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("ICT", 7*3600))

	tests := []struct {
		name     string
		filter   TicketFilter
		offset   int
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "empty filter",
			filter:   TicketFilter{},
			wantSQL:  "1=1",
			wantArgs: []any{},
		},
		{
			name:     "find starts at one",
			filter:   TicketFilter{Identifier: "UID", ChannelRef: "c1"},
			wantSQL:  "1=1 AND identifier = $1 AND channel_ref = $2",
			wantArgs: []any{"UID", "c1"},
		},
		{
			name:     "update skips media and channel args",
			filter:   TicketFilter{ID: "t1"},
			offset:   2,
			wantSQL:  "1=1 AND id = $3",
			wantArgs: []any{"t1"},
		},
		{
			name:     "all fields after offset",
			filter:   TicketFilter{ID: "t1", Identifier: "UID", ChannelRef: "c1", CreatedBefore: &cutoff},
			offset:   2,
			wantSQL:  "1=1 AND id = $3 AND identifier = $4 AND channel_ref = $5 AND created_at < $6",
			wantArgs: []any{"t1", "UID", "c1", cutoff.UTC()},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := whereClause(tt.filter, tt.offset, pgPlaceholder, pgTime)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestWhereClauseSQLiteUsesMillis(t *testing.T) {
	cutoff := time.UnixMilli(1714564800123)
	sql, args := whereClause(TicketFilter{CreatedBefore: &cutoff}, 0, sqlitePlaceholder, sqliteTime)
	assert.Equal(t, "1=1 AND created_at < ?", sql)
	assert.Equal(t, []any{int64(1714564800123)}, args)
}
