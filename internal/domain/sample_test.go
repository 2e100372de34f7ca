package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name        string
		description string
		barcode     string
		want        string
	}{
		{name: "simple", description: "Choc Bar", barcode: "998877", want: "choc_bar_998877"},
		{name: "whitespace runs collapse", description: "Choc   Bar\t50g", barcode: "1", want: "choc_bar_50g_1"},
		{name: "empty barcode", description: "Milk", barcode: "", want: "milk_"},
		{name: "mixed case", description: "DELISH Wafer", barcode: "AB12", want: "delish_wafer_ab12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.description, tt.barcode))
		})
	}
}

func TestKeyIsStable(t *testing.T) {
	first := Key("Choc Bar", "998877")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Key("Choc Bar", "998877"))
	}
}

func TestKeyDiffersOnInput(t *testing.T) {
	base := Key("Choc Bar", "998877")
	assert.NotEqual(t, base, Key("Choc Bar", "998878"))
	assert.NotEqual(t, base, Key("Choc Bars", "998877"))
	// Case and whitespace are normalized away.
	assert.Equal(t, base, Key("choc  bar", "998877"))
}

func TestSampleIssues(t *testing.T) {
	taken := &Sample{Status: StatusTaken}
	assert.Len(t, taken.Issues(), 2)

	ok := &Sample{Status: StatusTaken, TakenBy: "J DOE", Line: "L3"}
	assert.Empty(t, ok.Issues())

	avail := &Sample{Status: StatusAvailable}
	assert.Empty(t, avail.Issues())

	assert.NotEmpty(t, (&Sample{}).Issues())
}

func TestSampleReturner(t *testing.T) {
	assert.Equal(t, "A", (&Sample{ReturnBy: "A", ReturnedBy: "B"}).Returner())
	assert.Equal(t, "B", (&Sample{ReturnedBy: "B"}).Returner())
}

func TestErrorKinds(t *testing.T) {
	v := fmt.Errorf("wrapped: %w", &ValidationError{Message: "Name and Line are required."})
	assert.True(t, IsValidation(v))
	assert.False(t, IsTransient(v))

	cause := errors.New("boom")
	tr := &TransientError{Message: "Please try again.", Err: cause}
	assert.True(t, IsTransient(tr))
	assert.ErrorIs(t, tr, cause)
	assert.Equal(t, "Please try again.", tr.Error())

	assert.True(t, IsConflict(&ConflictError{Token: "t", Key: "k"}))
}
