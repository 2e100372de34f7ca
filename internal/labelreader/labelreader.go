// Package labelreader extracts registration fields from a photo of a pack
// label so the register form can be prefilled.
package labelreader

import (
	"context"
	"io"
)

// Prompt is the shared prompt used by all reader backends.
const Prompt = `Read the product label in this photo of a finished-goods pack.
Reply with one field per line in the form "field: value", using only these
fields: brand, description, mfg, batch, pack size, barcode.
Leave out any field you cannot read.`

type Reader interface {
	Read(ctx context.Context, r io.Reader, mimeType string) (*Label, error)
}

// Label holds whatever could be read. Empty fields were not found.
type Label struct {
	Brand       string
	Description string
	MFG         string
	BatchNumber string
	PackSize    string
	Barcode     string
	RawResponse string
}

func (l *Label) Empty() bool {
	return l.Brand == "" && l.Description == "" && l.MFG == "" &&
		l.BatchNumber == "" && l.PackSize == "" && l.Barcode == ""
}
