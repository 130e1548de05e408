package database

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"quill/internal/quill"
)

// rawTables are the tables exported and imported row by row.
var rawTables = map[string]bool{
	quill.TableMaterials:            true,
	quill.TableInspirationItems:     true,
	quill.TableInspirationFragments: true,
	quill.TableTimelines:            true,
	quill.TableTimelineEvents:       true,
}

// writingTables is the wipe order; children go before parents.
var writingTables = []string{
	"timeline_events",
	"timelines",
	"materials",
	"chapters",
	"books",
	"inspiration_fragments",
	"inspiration_items",
}

func checkRawTable(table string) error {
	if !rawTables[table] {
		return fmt.Errorf("table %q cannot be exported", table)
	}
	return nil
}

func (c *Conn) ExportTable(table string) ([]map[string]any, error) {
	if err := checkRawTable(table); err != nil {
		return nil, err
	}

	var out []map[string]any
	err := c.queryEach(fmt.Sprintf(`SELECT * FROM %s ORDER BY id`, table), nil, func(rows *sql.Rows) error {
		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("exporting %s: %w", table, err)
	}
	return out, nil
}

func (c *Conn) ImportRows(table string, rows []map[string]any) error {
	if err := checkRawTable(table); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	err := c.withTx(func(tx *Conn) error {
		// Self-referencing rows (event and item trees) may come child first.
		if _, err := tx.exec(`PRAGMA defer_foreign_keys = ON`); err != nil {
			return err
		}
		known, err := tx.columns(table)
		if err != nil {
			return err
		}

		for i, row := range rows {
			cols := make([]string, 0, len(row))
			for k := range row {
				if known[k] {
					cols = append(cols, k)
				}
			}
			if len(cols) == 0 {
				continue
			}
			sort.Strings(cols)

			quoted := make([]string, len(cols))
			args := make([]any, len(cols))
			for j, col := range cols {
				quoted[j] = `"` + col + `"`
				v, err := sqlValue(row[col])
				if err != nil {
					return fmt.Errorf("row %d column %s: %w", i, col, err)
				}
				args[j] = v
			}

			stmt := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, table,
				strings.Join(quoted, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
			if _, err := tx.exec(stmt, args...); err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("importing %s: %w", table, err)
	}
	return nil
}

// columns lists the column names of a trusted table name.
func (c *Conn) columns(table string) (map[string]bool, error) {
	cols := make(map[string]bool)
	err := c.queryEach(fmt.Sprintf(`SELECT name FROM pragma_table_info('%s')`, table), nil, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		cols[name] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	return cols, nil
}

// sqlValue converts a decoded JSON value into something the driver binds.
func sqlValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, int64, float64:
		return x, nil
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		return x.Float64()
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case int:
		return int64(x), nil
	case map[string]any, []any:
		// Nested JSON belongs in a TEXT column as JSON.
		data, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func (c *Conn) ClearAllWritingData() error {
	err := c.withTx(func(tx *Conn) error {
		for _, table := range writingTables {
			if _, err := tx.exec(`DELETE FROM ` + table); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("clearing writing data: %w", err)
	}
	c.logger.Info("cleared all writing data")
	return nil
}
