package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeForFormulaInjection(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain text", in: "2023-07-03", want: "2023-07-03"},
		{name: "equals formula", in: "=SUM(A1:A9)", want: "'=SUM(A1:A9)"},
		{name: "plus prefix", in: "+1234", want: "'+1234"},
		{name: "minus prefix", in: "-42", want: "'-42"},
		{name: "at prefix", in: "@cmd", want: "'@cmd"},
		{name: "leading space before formula", in: " =1+1", want: "' =1+1"},
		{name: "empty", in: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeForFormulaInjection(tt.in))
		})
	}
}

func TestStripUnprintable(t *testing.T) {
	assert.Equal(t, "abc\tdef\n", StripUnprintable("abc\tdef\x00\x07\n"))
}
