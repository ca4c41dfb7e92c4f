// Package schema models the typed column list of a ZDW file.
//
// On the writer side the schema is parsed from a .desc.sql side-car file of
// "name<TAB>sql_type" lines; on the reader side it is reconstructed from the
// file header. Column names are stored verbatim but matched
// case-insensitively.
package schema

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/adobe/zdw/errs"
)

// Column is one typed column of a table.
type Column struct {
	Name string
	Type ColumnType
	// CharWidth is the declared character width of the SQL type, where
	// applicable (varchar(N), char(N)); zero means "don't care".
	CharWidth uint16
}

// Table is an ordered column list with case-insensitive name lookup.
type Table struct {
	columns []Column
	byName  map[string]int // lowercased name -> first index
}

// NewTable builds a Table from an ordered column list.
func NewTable(columns []Column) *Table {
	t := &Table{
		columns: columns,
		byName:  make(map[string]int, len(columns)),
	}
	for i, col := range columns {
		key := strings.ToLower(col.Name)
		if _, exists := t.byName[key]; !exists {
			t.byName[key] = i
		}
	}

	return t
}

// Columns returns the ordered column list.
func (t *Table) Columns() []Column { return t.columns }

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int { return len(t.columns) }

// Column returns the i-th column.
func (t *Table) Column(i int) Column { return t.columns[i] }

// Lookup finds a column by name, case-insensitively, returning its
// declaration index.
func (t *Table) Lookup(name string) (int, bool) {
	i, ok := t.byName[strings.ToLower(name)]

	return i, ok
}

// ParseDesc parses a description side-car: one column per line as
// "name<TAB>sql_type". A leading header line starting with "Field" is
// skipped. A line without a tab is a fatal format error.
func ParseDesc(r io.Reader) (*Table, error) {
	var columns []Column

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		if len(line) >= 5 && strings.EqualFold(line[:5], "Field") {
			continue
		}

		name, sqlType, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("%w: no tab separator on line %q", errs.ErrDescFileMissingTypeInfo, line)
		}

		colType, charWidth := parseSQLType(sqlType)
		columns = append(columns, Column{Name: name, Type: colType, CharWidth: charWidth})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrIoRead, err)
	}

	return NewTable(columns), nil
}

// parseSQLType maps a SQL type text to a column type tag and declared char
// width. Unrecognized numeric types fall through to int.
func parseSQLType(sqlType string) (ColumnType, uint16) {
	lower := strings.ToLower(sqlType)

	switch {
	case strings.HasPrefix(lower, "varchar"):
		return TypeVarchar, parseParenWidth(lower, "varchar")
	case strings.HasPrefix(lower, "char"):
		width := parseParenWidth(lower, "char")
		switch width {
		case 1:
			return TypeChar, width
		case 2:
			return TypeChar2, width
		default:
			// char(3+) is stored as varchar; only the width is kept.
			return TypeVarchar, width
		}
	case strings.HasPrefix(lower, "tinytext"):
		return TypeTinyText, 0
	case strings.HasPrefix(lower, "mediumtext"):
		return TypeMediumText, 0
	case strings.HasPrefix(lower, "longtext"):
		return TypeLongText, 0
	case strings.HasPrefix(lower, "text"):
		return TypeText, 0
	case strings.HasPrefix(lower, "datetime"):
		return TypeDatetime, 0
	case strings.HasPrefix(lower, "decimal"), len(lower) > 1 && strings.HasPrefix(lower[1:], "decimal"):
		return TypeDecimal, 0
	}

	// Numeric types: signed unless the token "unsigned" appears.
	signed := !strings.Contains(lower, "unsigned")
	switch {
	case strings.HasPrefix(lower, "tinyint"):
		if signed {
			return TypeTinySigned, 0
		}
		return TypeTiny, 0
	case strings.HasPrefix(lower, "smallint"):
		if signed {
			return TypeShortSigned, 0
		}
		return TypeShort, 0
	case strings.HasPrefix(lower, "bigint"):
		if signed {
			return TypeLongLongSigned, 0
		}
		return TypeLongLong, 0
	default:
		if signed {
			return TypeLongSigned, 0
		}
		return TypeLong, 0
	}
}

// parseParenWidth extracts N from "prefix(N...)"; zero when absent.
func parseParenWidth(s, prefix string) uint16 {
	rest := s[len(prefix):]
	if len(rest) == 0 || rest[0] != '(' {
		return 0
	}
	rest = rest[1:]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	n, err := strconv.ParseUint(rest[:end], 10, 16)
	if err != nil {
		return 0
	}

	return uint16(n)
}

// DescLine renders one column as a description-file line body (no
// delimiter), reversing parseSQLType. Virtual columns render as their
// underlying SQL types. An empty string means the type cannot be described.
func DescLine(col Column, separator string) string {
	text, ok := sqlTypeText(col)
	if !ok {
		return ""
	}

	return col.Name + separator + text
}

func sqlTypeText(col Column) (string, bool) {
	switch col.Type {
	case TypeVirtualExportBasename, TypeVarchar:
		width := col.CharWidth
		if width == 0 {
			width = 255 // pre-v7 files carry no width
		}
		return fmt.Sprintf("varchar(%d)", width), true
	case TypeText:
		return "text", true
	case TypeTinyText:
		return "tinytext", true
	case TypeMediumText:
		return "mediumtext", true
	case TypeLongText:
		return "longtext", true
	case TypeDatetime:
		return "datetime", true
	case TypeChar2:
		return "char(2)", true
	case TypeChar:
		return "char(1)", true
	case TypeTiny:
		return "tinyint(3) unsigned", true
	case TypeShort:
		return "smallint(5) unsigned", true
	case TypeVirtualExportRow, TypeLong:
		return "int(11) unsigned", true
	case TypeLongLong:
		return "bigint(20) unsigned", true
	case TypeTinySigned:
		return "tinyint(3)", true
	case TypeShortSigned:
		return "smallint(5)", true
	case TypeLongSigned:
		return "int(11)", true
	case TypeLongLongSigned:
		return "bigint(20)", true
	case TypeDecimal:
		return "decimal(24,12)", true
	default:
		return "", false
	}
}

// WriteDesc writes the description side-car for the given columns, one
// "name<TAB>sql_type" line per column.
func WriteDesc(w io.Writer, columns []Column) error {
	for _, col := range columns {
		line := DescLine(col, "\t")
		if line == "" {
			return fmt.Errorf("%w: column %q has type %s", errs.ErrUnexpectedDescType, col.Name, col.Type)
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrFileCreate, err)
		}
	}

	return nil
}
