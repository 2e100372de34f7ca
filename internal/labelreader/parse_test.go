package labelreader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		field string
		value string
		ok    bool
	}{
		{name: "plain", line: "brand: Delish", field: "brand", value: "Delish", ok: true},
		{name: "bulleted", line: "- Batch Number: B77", field: "batch", value: "B77", ok: true},
		{name: "quoted", line: `barcode: "998877"`, field: "barcode", value: "998877", ok: true},
		{name: "alias", line: "Net weight: 24x50g", field: "packsize", value: "24x50g", ok: true},
		{name: "no colon", line: "Here is what I can read", ok: false},
		{name: "unknown field", line: "colour: red", ok: false},
		{name: "blank value", line: "mfg:  ", ok: false},
		{name: "unknown value", line: "mfg: unknown", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field, value, ok := ParseLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.field, field)
			assert.Equal(t, tt.value, value)
		})
	}
}

func TestParseResponse(t *testing.T) {
	raw := "Here is the label:\nbrand: Delish\ndescription: Choc Bar\nmfg: 01/04/2025\nbatch: B77\npack size: 24x50g\nbarcode: 998877\nbrand: Other"

	label := ParseResponse(raw)
	assert.Equal(t, &Label{
		Brand:       "Delish",
		Description: "Choc Bar",
		MFG:         "01/04/2025",
		BatchNumber: "B77",
		PackSize:    "24x50g",
		Barcode:     "998877",
		RawResponse: raw,
	}, label)
	assert.False(t, label.Empty())
}

func TestParseResponseNothingReadable(t *testing.T) {
	label := ParseResponse("I cannot read this label.")
	assert.True(t, label.Empty())
}
