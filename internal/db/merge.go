package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Merge describes rows merged into Table through a temporary staging table:
// rows are copied into the stage, then inserted into Table. Rows whose Keys
// already exist have their Update columns overwritten; when Update is nil
// every non-key column is overwritten.
type Merge struct {
	Table   string
	Columns []string
	Keys    []string
	Update  []string
}

func (m Merge) check() error {
	switch {
	case m.Table == "":
		return eris.New("db: merge: no table")
	case len(m.Columns) == 0:
		return eris.Errorf("db: merge into %s: no columns", m.Table)
	case len(m.Keys) == 0:
		return eris.Errorf("db: merge into %s: no conflict keys", m.Table)
	}
	return nil
}

func (m Merge) updateColumns() []string {
	if m.Update != nil {
		return m.Update
	}
	keys := make(map[string]struct{}, len(m.Keys))
	for _, k := range m.Keys {
		keys[k] = struct{}{}
	}
	var cols []string
	for _, c := range m.Columns {
		if _, ok := keys[c]; !ok {
			cols = append(cols, c)
		}
	}
	return cols
}

func (m Merge) stage() string {
	return "_stage_" + strings.ReplaceAll(m.Table, ".", "_")
}

// statements returns the stage creation and merge SQL.
func (m Merge) statements() (create, merge string) {
	stage := pgx.Identifier{m.stage()}.Sanitize()
	target := identifier(m.Table).Sanitize()
	cols := columnList(m.Columns)

	create = "CREATE TEMP TABLE " + stage + " (LIKE " + target + " INCLUDING DEFAULTS) ON COMMIT DROP"

	var b strings.Builder
	b.WriteString("INSERT INTO " + target + " (" + cols + ") SELECT " + cols + " FROM " + stage)
	b.WriteString(" ON CONFLICT (" + columnList(m.Keys) + ") ")
	update := m.updateColumns()
	if len(update) == 0 {
		b.WriteString("DO NOTHING")
		return create, b.String()
	}
	b.WriteString("DO UPDATE SET ")
	for i, c := range update {
		if i > 0 {
			b.WriteString(", ")
		}
		col := pgx.Identifier{c}.Sanitize()
		b.WriteString(col + " = EXCLUDED." + col)
	}
	return create, b.String()
}

// Into merges rows inside tx and returns the number of rows inserted or
// updated. The staging table is dropped on commit.
func (m Merge) Into(ctx context.Context, tx Execer, rows [][]any) (int64, error) {
	if err := m.check(); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	create, merge := m.statements()
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: merge into %s: create stage", m.Table)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{m.stage()}, m.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: merge into %s: copy stage", m.Table)
	}
	tag, err := tx.Exec(ctx, merge)
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge into %s", m.Table)
	}
	return tag.RowsAffected(), nil
}

// identifier splits an optionally schema-qualified name.
func identifier(name string) pgx.Identifier {
	if schema, table, ok := strings.Cut(name, "."); ok {
		return pgx.Identifier{schema, table}
	}
	return pgx.Identifier{name}
}

func columnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
