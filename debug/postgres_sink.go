// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package debug

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
)

// PostgresTraceSink logs every traced instruction to a postgres table,
// batched inside one transaction and committed every commitEvery rows so a
// mid-run interruption keeps most of what was logged so far — the same
// commit-every-10000-inserts discipline the pack's pgx-based execution
// logger (jackc/pgx v1-era opLog) used, rebuilt here against pgx/v4's
// context-taking API and pgx.Tx instead of pgx.ConnPool/pgx.Tx.Exec's
// no-context v1 form.
type PostgresTraceSink struct {
	conn        *pgx.Conn
	tx          pgx.Tx
	runNum      int
	commitEvery int64
	seen        int64
}

// NewPostgresTraceSink opens conn's first transaction and returns a sink
// bound to it. runNum identifies this execution run in the
// execution_run.run_num column, the way the pack's vm.PgRunNum did.
func NewPostgresTraceSink(ctx context.Context, conn *pgx.Conn, runNum int, commitEvery int64) (*PostgresTraceSink, error) {
	if commitEvery <= 0 {
		commitEvery = 10000
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &PostgresTraceSink{conn: conn, tx: tx, runNum: runNum, commitEvery: commitEvery}, nil
}

// LogOp inserts one execution_run row, matching the pack's opLog field
// layout (op_num, run_num, op_code, op_name, plus up to len(fields) named
// extra columns), and commits/reopens the transaction every commitEvery
// rows.
func (p *PostgresTraceSink) LogOp(rec OpRecord) error {
	if len(rec.Fields) != len(rec.Data) {
		return fmt.Errorf("debug: mismatched field/data count logging op %q", rec.OpName)
	}

	ctx := context.Background()

	var cols strings.Builder
	args := []interface{}{rec.OpNum, p.runNum, rec.OpCode, rec.OpName}
	for i, f := range rec.Fields {
		cols.WriteString(", ")
		cols.WriteString(f)
		args = append(args, rec.Data[i])
	}

	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(
		"INSERT INTO execution_run (op_num, run_num, op_code, op_name%s) VALUES (%s)",
		cols.String(), strings.Join(placeholders, ", "),
	)

	tag, err := p.tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("debug: logging op %q affected %d rows, want 1", rec.OpName, tag.RowsAffected())
	}

	p.seen++
	if p.seen%p.commitEvery == 0 {
		if err := p.tx.Commit(ctx); err != nil {
			return err
		}
		p.tx, err = p.conn.Begin(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

// Close commits any pending rows and closes the underlying connection.
func (p *PostgresTraceSink) Close() error {
	ctx := context.Background()
	if err := p.tx.Commit(ctx); err != nil {
		return err
	}
	return p.conn.Close(ctx)
}
