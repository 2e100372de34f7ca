package labelreader

import (
	"strings"
	"unicode"
)

// ParseResponse reads "field: value" lines. Unknown fields and lines without
// a colon are ignored; the first value seen for a field wins.
func ParseResponse(raw string) *Label {
	label := &Label{RawResponse: raw}
	for _, line := range strings.Split(raw, "\n") {
		field, value, ok := ParseLine(line)
		if !ok {
			continue
		}
		target := label.field(field)
		if target != nil && *target == "" {
			*target = value
		}
	}
	return label
}

// ParseLine splits one line into a canonical field name and its value.
func ParseLine(line string) (field, value string, ok bool) {
	line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•"))
	name, value, found := strings.Cut(line, ":")
	if !found {
		return "", "", false
	}
	value = strings.Trim(strings.TrimSpace(value), `"`)
	if value == "" || strings.EqualFold(value, "unknown") || strings.EqualFold(value, "n/a") {
		return "", "", false
	}
	field = canonical(name)
	if field == "" {
		return "", "", false
	}
	return field, value, true
}

func canonical(name string) string {
	key := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, name)
	switch key {
	case "brand":
		return "brand"
	case "description", "product", "productname", "name":
		return "description"
	case "mfg", "mfgdate", "manufactured", "manufacturingdate":
		return "mfg"
	case "batch", "batchnumber", "batchno", "lot", "lotnumber":
		return "batch"
	case "packsize", "size", "netweight", "weight":
		return "packsize"
	case "barcode", "ean", "upc":
		return "barcode"
	}
	return ""
}

func (l *Label) field(name string) *string {
	switch name {
	case "brand":
		return &l.Brand
	case "description":
		return &l.Description
	case "mfg":
		return &l.MFG
	case "batch":
		return &l.BatchNumber
	case "packsize":
		return &l.PackSize
	case "barcode":
		return &l.Barcode
	}
	return nil
}
