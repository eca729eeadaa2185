package request

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeQuery(t *testing.T) {
	studies, f, err := DecodeQuery(strings.NewReader(`{"studies": ["ssc"], "filter": {"family_ids": [], "limit": 5}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"ssc"}, studies)
	assert.NotNil(t, f.FamilyIDs)
	assert.Empty(t, f.FamilyIDs)
	assert.Nil(t, f.PersonIDs)
	assert.Equal(t, 5, f.Limit)

	studies, f, err = DecodeQuery(strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Nil(t, studies)
	assert.NotNil(t, f)

	_, _, err = DecodeQuery(strings.NewReader(`{"study": "ssc"}`))
	assert.Error(t, err)

	_, _, err = DecodeQuery(strings.NewReader(`{"filter": {"familes": ["f1"]}}`))
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatNDJSON, ParseFormat(""))
	assert.Equal(t, FormatNDJSON, ParseFormat("csv"))
	assert.Equal(t, "application/x-ndjson", FormatNDJSON.ContentType())
	assert.Equal(t, "json", FormatJSON.String())
}
