package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"$123.45", "123.45"},
		{"123.45", "123.45"},
		{"$1,234.56", "1234.56"},
		{"$1,234,567.89", "1234567.89"},
		{" $0.01 ", "0.01"},
		{"12.00 USD", "12"},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got.String(), "input %q", tt.in)
	}
}

func TestParseAmountInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "$", "12.3.4"} {
		_, err := ParseAmount(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseAlertDate(t *testing.T) {
	fallback := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	d := parseAlertDate("August 27, 2026", fallback)
	assert.Equal(t, time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC), d)

	d = parseAlertDate("08/27/2026", fallback)
	assert.Equal(t, time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC), d)

	assert.Equal(t, fallback, parseAlertDate("", fallback))
	assert.Equal(t, fallback, parseAlertDate("not a date", fallback))
}
