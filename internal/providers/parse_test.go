package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTaskArray(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    []string
		wantErr bool
	}{
		{name: "plain", text: `["Book flight", "Reserve hotel"]`, want: []string{"Book flight", "Reserve hotel"}},
		{name: "fenced with prose", text: "Sure!\n```json\n[\"a\", \"b\"]\n```\nGood luck.", want: []string{"a", "b"}},
		{name: "empty", text: `[]`, want: []string{}},
		{name: "trims and drops blanks", text: `["  a ", "", "   "]`, want: []string{"a"}},
		{name: "repairs single quotes and trailing comma", text: `['a', 'b',]`, want: []string{"a", "b"}},
		{name: "no array", text: "I cannot help with that.", wantErr: true},
		{name: "objects are not tasks", text: `[{"task": "a"}]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTaskArray(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTaskArray_SchemaError(t *testing.T) {
	_, err := parseTaskArray(`[1, 2]`)
	var arrErr *TaskArrayError
	require.ErrorAs(t, err, &arrErr)
	assert.NotEmpty(t, arrErr.Errors)

	_, err = parseTaskArray("nothing here")
	assert.ErrorIs(t, err, ErrNoTaskArray)
}
