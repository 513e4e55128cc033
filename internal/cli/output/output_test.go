package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"", FormatTable, false},
		{"JSON", FormatJSON, false},
		{" yaml ", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

type fakeRows struct{}

func (fakeRows) Headers() []string { return []string{"ID", "NAME"} }
func (fakeRows) Rows() [][]string  { return [][]string{{"1", "alpha"}, {"2", "beta"}} }

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, fakeRows{}))

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "beta")
}

func TestPrinterJSON(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatJSON)

	require.NoError(t, p.Print(map[string]int{"blocks": 42}))

	var decoded map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 42, decoded["blocks"])
}

func TestPrinterYAML(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatYAML)

	require.NoError(t, p.Print(map[string]string{"name": "nightly"}))
	assert.Contains(t, buf.String(), "name: nightly")
}

func TestPrintfSuppressedForMachineFormats(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, FormatJSON).Printf("note: %d\n", 7)
	assert.Empty(t, buf.String())

	NewPrinter(&buf, FormatTable).Printf("note: %d\n", 7)
	assert.True(t, strings.Contains(buf.String(), "note: 7"))
}

func TestKeyValueTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, KeyValueTable(&buf, [][2]string{
		{"Block size", "4096 bytes"},
		{"Snapshots", "2"},
	}))
	assert.Contains(t, buf.String(), "Block size")
	assert.Contains(t, buf.String(), "4096 bytes")
}
