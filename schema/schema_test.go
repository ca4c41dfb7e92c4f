package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDesc(t *testing.T) {
	desc := strings.Join([]string{
		"Field\tType",
		"name\tvarchar(64)",
		"note\ttext",
		"short_note\ttinytext",
		"body\tmediumtext",
		"full_body\tlongtext",
		"created\tdatetime",
		"grade\tchar(1)",
		"state\tchar(2)",
		"code\tchar(8)",
		"amount\tdecimal(24,12)",
		"tiny_u\ttinyint(3) unsigned",
		"tiny_s\ttinyint(3)",
		"small_u\tsmallint(5) unsigned",
		"small_s\tsmallint(5)",
		"big_u\tbigint(20) unsigned",
		"big_s\tbigint(20)",
		"int_u\tint(11) unsigned",
		"int_s\tint(11)",
	}, "\n") + "\n"

	table, err := ParseDesc(strings.NewReader(desc))
	require.NoError(t, err)
	require.Equal(t, 18, table.NumColumns())

	expect := []struct {
		name      string
		colType   ColumnType
		charWidth uint16
	}{
		{"name", TypeVarchar, 64},
		{"note", TypeText, 0},
		{"short_note", TypeTinyText, 0},
		{"body", TypeMediumText, 0},
		{"full_body", TypeLongText, 0},
		{"created", TypeDatetime, 0},
		{"grade", TypeChar, 1},
		{"state", TypeChar2, 2},
		{"code", TypeVarchar, 8},
		{"amount", TypeDecimal, 0},
		{"tiny_u", TypeTiny, 0},
		{"tiny_s", TypeTinySigned, 0},
		{"small_u", TypeShort, 0},
		{"small_s", TypeShortSigned, 0},
		{"big_u", TypeLongLong, 0},
		{"big_s", TypeLongLongSigned, 0},
		{"int_u", TypeLong, 0},
		{"int_s", TypeLongSigned, 0},
	}
	for i, e := range expect {
		col := table.Column(i)
		require.Equal(t, e.name, col.Name, "column %d", i)
		require.Equal(t, e.colType, col.Type, "column %d (%s)", i, e.name)
		require.Equal(t, e.charWidth, col.CharWidth, "column %d (%s)", i, e.name)
	}
}

func TestParseDescMissingTab(t *testing.T) {
	_, err := ParseDesc(strings.NewReader("name varchar(10)\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "type info")
}

func TestLookupCaseInsensitive(t *testing.T) {
	table := NewTable([]Column{
		{Name: "Page_URL", Type: TypeVarchar},
		{Name: "hits", Type: TypeLong},
	})

	for _, name := range []string{"page_url", "PAGE_URL", "Page_URL"} {
		i, ok := table.Lookup(name)
		require.True(t, ok, name)
		require.Equal(t, 0, i)
	}

	_, ok := table.Lookup("missing")
	require.False(t, ok)
}

func TestDescRoundTrip(t *testing.T) {
	desc := "name\tvarchar(64)\nhits\tint(11) unsigned\namount\tdecimal(24,12)\n"
	table, err := ParseDesc(strings.NewReader(desc))
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, WriteDesc(&sb, table.Columns()))
	require.Equal(t, desc, sb.String())
}

func TestColumnTypeProperties(t *testing.T) {
	require.True(t, TypeVarchar.UsesDictionary())
	require.True(t, TypeDecimal.UsesDictionary())
	require.True(t, TypeChar2.UsesDictionary())
	require.False(t, TypeChar.UsesDictionary())
	require.False(t, TypeLong.UsesDictionary())

	require.True(t, TypeLongSigned.IsSigned())
	require.False(t, TypeLong.IsSigned())
	require.True(t, TypeLong.IsInteger())
	require.False(t, TypeText.IsInteger())

	require.Equal(t, "", TypeText.Default())
	require.Equal(t, "0", TypeLongLong.Default())
	require.Equal(t, "0.000000000000", TypeDecimal.Default())

	require.True(t, TypeVirtualExportRow.IsVirtual())
	require.False(t, TypeVirtualExportRow.IsValid())
	require.True(t, TypeLongText.IsValid())
	require.False(t, ColumnType(4).IsValid())
	require.False(t, ColumnType(42).IsValid())
}
