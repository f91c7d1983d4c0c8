// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package audit

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const operationColumns = "id, tenant_id, kind, status, started_at, completed_at, stats, error_message"

// placeholderFunc renders the n-th (1-based) bind parameter.
type placeholderFunc func(n int) string

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

// buildListQuery builds the SELECT for List. statsExpr lets a dialect cast
// its JSON column to text.
func buildListQuery(filter Filter, statsExpr string, ph placeholderFunc) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, ph(len(args))))
	}

	if filter.TenantID != "" {
		add("tenant_id = %s", filter.TenantID)
	}
	if filter.Kind != "" {
		add("kind = %s", filter.Kind)
	}
	if filter.Status != "" {
		add("status = %s", filter.Status)
	}
	if !filter.Since.IsZero() {
		add("started_at >= %s", filter.Since)
	}

	var sb strings.Builder
	sb.WriteString("SELECT id, tenant_id, kind, status, started_at, completed_at, ")
	sb.WriteString(statsExpr)
	sb.WriteString(", error_message FROM sync_operations")
	if len(conditions) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conditions, " AND "))
	}
	sb.WriteString(" ORDER BY started_at DESC, id DESC")
	if filter.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", filter.Limit)
	}
	return sb.String(), args
}

// rowScanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOperation(row rowScanner) (*Operation, error) {
	var (
		op          Operation
		completedAt *time.Time
		stats       *string
		errMsg      *string
	)
	if err := row.Scan(&op.ID, &op.TenantID, &op.Kind, &op.Status, &op.StartedAt, &completedAt, &stats, &errMsg); err != nil {
		return nil, err
	}
	if completedAt != nil {
		t := completedAt.UTC()
		op.CompletedAt = &t
	}
	op.StartedAt = op.StartedAt.UTC()
	if stats != nil && *stats != "" && *stats != "null" {
		if err := json.Unmarshal([]byte(*stats), &op.Stats); err != nil {
			return nil, fmt.Errorf("decode stats: %w", err)
		}
	}
	if errMsg != nil {
		op.Error = *errMsg
	}
	return &op, nil
}

func marshalStats(stats map[string]int) string {
	if len(stats) == 0 {
		return "{}"
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return "{}"
	}
	return string(data)
}
