package docservice

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_Unmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ID
	}{
		{name: "number", in: `12`, want: "12"},
		{name: "string", in: `"abc-1"`, want: "abc-1"},
		{name: "null", in: `null`, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ID
			require.NoError(t, json.Unmarshal([]byte(tt.in), &id))
			assert.Equal(t, tt.want, id)
		})
	}

	var id ID
	assert.Error(t, json.Unmarshal([]byte(`true`), &id))
}

func TestID_Marshal(t *testing.T) {
	tests := []struct {
		id   ID
		want string
	}{
		{id: "12", want: `12`},
		{id: "S7", want: `"S7"`},
		{id: "", want: `null`},
	}

	for _, tt := range tests {
		out, err := json.Marshal(tt.id)
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(out))
	}
}

func TestLatest(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Nil(t, Latest(nil))

	sessions := []ChatSession{
		{SessionID: "S2", CreatedAt: base.Add(time.Hour)},
		{SessionID: "S1", CreatedAt: base},
		{SessionID: "S3", CreatedAt: base.Add(2 * time.Hour)},
	}
	assert.Equal(t, ID("S3"), Latest(sessions).SessionID)

	tied := []ChatSession{{SessionID: "A"}, {SessionID: "B"}}
	assert.Equal(t, ID("A"), Latest(tied).SessionID)
}
