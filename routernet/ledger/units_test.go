package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1000", "1000"},
		{"1000wei", "1000"},
		{"2gwei", "2000000000"},
		{"1ether", "1000000000000000000"},
		{"1.5 ether", "1500000000000000000"},
		{" 0.25ETHER ", "250000000000000000"},
		{"0", "0"},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseAmount(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func TestParseAmountErrors(t *testing.T) {
	for _, in := range []string{"", "abc", "0.5", "1.0000000000000000001ether", "-1", "ether"} {
		_, err := ParseAmount(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestFormatEther(t *testing.T) {
	one, err := ParseAmount("1ether")
	require.NoError(t, err)
	quarter, err := ParseAmount("0.25ether")
	require.NoError(t, err)

	assert.Equal(t, "1", FormatEther(one))
	assert.Equal(t, "0.25", FormatEther(quarter))
	assert.Equal(t, "0", FormatEther(nil))
	assert.Equal(t, "0.000000000000000001", FormatEther(Wei))
}
