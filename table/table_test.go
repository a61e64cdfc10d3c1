package table_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/adamwoolhether/koatap/table"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const voTable = `<?xml version="1.0" encoding="UTF-8"?>
<VOTABLE version="1.4" xmlns="http://www.ivoa.net/xml/VOTable/v1.3">
  <RESOURCE type="results">
    <INFO name="QUERY_STATUS" value="OK"/>
    <TABLE>
      <FIELD name="koaid" datatype="char" arraysize="*"/>
      <FIELD name="ra" datatype="double" unit="deg"/>
      <DATA>
        <TABLEDATA>
          <TR><TD>HI.20190101.12345.fits</TD><TD>12.5</TD></TR>
        </TABLEDATA>
      </DATA>
    </TABLE>
  </RESOURCE>
</VOTABLE>`

const ipacTable = `\fixlen = T
\ generated by the archive
|  koaid                  |  ra      |  filter |
|  char                   |  double  |  char   |
|                         |  deg     |         |
|  null                   |  null    |  null   |
   HI.20190101.12345.fits    12.5       null
   HI.20190102.54321.fits    13.75      kv370
`

func TestParse(t *testing.T) {
	testCases := []struct {
		name    string
		format  table.Format
		input   string
		expCols []table.Column
		expRows [][]string
	}{
		{
			name:   "votable",
			format: table.FormatVOTable,
			input:  voTable,
			expCols: []table.Column{
				{Name: "koaid", Datatype: "char"},
				{Name: "ra", Datatype: "double", Unit: "deg"},
			},
			expRows: [][]string{{"HI.20190101.12345.fits", "12.5"}},
		},
		{
			name:   "ipac",
			format: table.FormatIPAC,
			input:  ipacTable,
			expCols: []table.Column{
				{Name: "koaid", Datatype: "char"},
				{Name: "ra", Datatype: "double", Unit: "deg"},
				{Name: "filter", Datatype: "char"},
			},
			expRows: [][]string{
				{"HI.20190101.12345.fits", "12.5", ""},
				{"HI.20190102.54321.fits", "13.75", "kv370"},
			},
		},
		{
			name:    "csv",
			format:  table.FormatCSV,
			input:   "koaid,ra\nHI.1,12.5\nHI.2,\"1,5\"\n",
			expCols: []table.Column{{Name: "koaid"}, {Name: "ra"}},
			expRows: [][]string{{"HI.1", "12.5"}, {"HI.2", "1,5"}},
		},
		{
			name:    "tsv",
			format:  table.FormatTSV,
			input:   "koaid\tra\nHI.1\t12.5\n",
			expCols: []table.Column{{Name: "koaid"}, {Name: "ra"}},
			expRows: [][]string{{"HI.1", "12.5"}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tbl, err := table.Parse(tc.format, strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("exp no error, got: %v", err)
			}

			if diff := cmp.Diff(tc.expCols, tbl.Columns); diff != "" {
				t.Errorf("columns mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tc.expRows, tbl.Rows); diff != "" {
				t.Errorf("rows mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		format table.Format
		input  string
		expErr error
	}{
		{
			name:   "votable query error",
			format: table.FormatVOTable,
			input:  `<VOTABLE><RESOURCE type="results"><INFO name="QUERY_STATUS" value="ERROR">table koa_nope does not exist</INFO></RESOURCE></VOTABLE>`,
			expErr: table.ErrQueryStatus,
		},
		{
			name:   "votable without table",
			format: table.FormatVOTable,
			input:  `<VOTABLE><RESOURCE/></VOTABLE>`,
			expErr: table.ErrMalformed,
		},
		{
			name:   "votable binary",
			format: table.FormatVOTable,
			input:  `<VOTABLE><RESOURCE><TABLE><FIELD name="a"/><DATA><BINARY><STREAM/></BINARY></DATA></TABLE></RESOURCE></VOTABLE>`,
			expErr: table.ErrUnsupportedFormat,
		},
		{
			name:   "ipac without header",
			format: table.FormatIPAC,
			input:  "  1  2\n",
			expErr: table.ErrMalformed,
		},
		{
			name:   "empty csv",
			format: table.FormatCSV,
			input:  "",
			expErr: table.ErrMalformed,
		},
		{
			name:   "unknown format",
			format: table.Format("fits"),
			input:  "",
			expErr: table.ErrUnsupportedFormat,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := table.Parse(tc.format, strings.NewReader(tc.input))
			if !errors.Is(err, tc.expErr) {
				t.Errorf("exp %v, got: %v", tc.expErr, err)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	testCases := []struct {
		in     string
		exp    table.Format
		expErr bool
	}{
		{in: "", exp: table.FormatVOTable},
		{in: "VOTable", exp: table.FormatVOTable},
		{in: " ipac ", exp: table.FormatIPAC},
		{in: "tbl", exp: table.FormatIPAC},
		{in: "CSV", exp: table.FormatCSV},
		{in: "tsv", exp: table.FormatTSV},
		{in: "fits", expErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := table.ParseFormat(tc.in)
			if tc.expErr {
				if !errors.Is(err, table.ErrUnsupportedFormat) {
					t.Errorf("exp ErrUnsupportedFormat, got: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("exp no error, got: %v", err)
			}
			if got != tc.exp {
				t.Errorf("exp %q, got %q", tc.exp, got)
			}
		})
	}
}

func TestParse_VOTableLatin1(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<VOTABLE><RESOURCE><TABLE>" +
		`<FIELD name="observer" datatype="char" arraysize="*"/>` +
		"<DATA><TABLEDATA><TR><TD>Ren\xe9e</TD></TR></TABLEDATA></DATA>" +
		"</TABLE></RESOURCE></VOTABLE>"

	tbl, err := table.Parse(table.FormatVOTable, strings.NewReader(doc))
	if err != nil {
		t.Fatalf("exp no error, got: %v", err)
	}

	v, ok := tbl.Value(0, "observer")
	if !ok || v != "Renée" {
		t.Errorf("exp %q, got %q (ok=%v)", "Renée", v, ok)
	}
}

func TestTable_Value(t *testing.T) {
	tbl, err := table.Parse(table.FormatVOTable, strings.NewReader(voTable))
	if err != nil {
		t.Fatal(err)
	}

	if got := tbl.NumRows(); got != 1 {
		t.Fatalf("exp 1 row, got %d", got)
	}
	if diff := cmp.Diff([]string{"koaid", "ra"}, tbl.ColumnNames()); diff != "" {
		t.Errorf("column names mismatch (-want +got):\n%s", diff)
	}

	v, ok := tbl.Value(0, "KOAID")
	if !ok || v != "HI.20190101.12345.fits" {
		t.Errorf("exp koaid value, got %q (ok=%v)", v, ok)
	}
	if _, ok := tbl.Value(1, "koaid"); ok {
		t.Error("exp out of range row to miss")
	}
	if _, ok := tbl.Value(0, "dec"); ok {
		t.Error("exp unknown column to miss")
	}
}
