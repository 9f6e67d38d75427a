package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ncbimcp/ncbimcp/internal/core"
)

func TestCatalogCoversEveryOperation(t *testing.T) {
	for _, op := range core.Operations {
		tool, ok := Lookup(string(op))
		require.True(t, ok, "missing tool for %s", op)
		require.Equal(t, op, tool.Operation)
		require.Equal(t, GroupEUtilities, tool.Group)
	}

	for _, name := range []string{core.ToolSearchAndFetch, core.ToolGetDatabases, core.ToolServerInfo} {
		tool, ok := Lookup(name)
		require.True(t, ok)
		require.Empty(t, tool.Operation)
		require.Equal(t, GroupHelpers, tool.Group)
	}

	require.Len(t, Names(), 12)
	grouped := Grouped()
	require.Len(t, grouped[GroupEUtilities], 9)
	require.Len(t, grouped[GroupHelpers], 3)
}

func TestLookupUnknown(t *testing.T) {
	_, ok := Lookup("esearchh")
	require.False(t, ok)
}

func TestValidateRequired(t *testing.T) {
	tool, _ := Lookup("esearch")

	require.NoError(t, tool.Validate(core.Params{"db": "pubmed", "term": "asthma"}))

	err := tool.Validate(core.Params{"db": "pubmed", "term": "  "})
	require.ErrorIs(t, err, ErrMissingArguments)
	require.Contains(t, err.Error(), "term")
}

func TestValidateAnyOf(t *testing.T) {
	tool, _ := Lookup("efetch")

	require.NoError(t, tool.Validate(core.Params{"db": "pubmed", "id_list": []any{"1"}}))
	require.NoError(t, tool.Validate(core.Params{"db": "pubmed", "webenv": "MCID_1"}))

	err := tool.Validate(core.Params{"db": "pubmed"})
	require.ErrorIs(t, err, ErrMissingArguments)
	require.Contains(t, err.Error(), "db+id_list or db+webenv")
}

func TestWireParams(t *testing.T) {
	tool, _ := Lookup("esearch")
	params, err := tool.WireParams(core.Params{
		"db":         "pubmed",
		"term":       "crispr",
		"retmax":     float64(5),
		"usehistory": true,
		"unknown":    "dropped",
	})
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"db":         "pubmed",
		"term":       "crispr",
		"retmax":     "5",
		"retstart":   "0",
		"usehistory": "y",
		"retmode":    "json",
	}, params)
}

func TestWireParamsRenamesAndJoins(t *testing.T) {
	fetch, _ := Lookup("efetch")
	params, err := fetch.WireParams(core.Params{"db": "protein", "id_list": []any{"1", " 2 ", ""}, "webenv": "MCID_1", "query_key": 2})
	require.NoError(t, err)
	require.Equal(t, "1,2", params["id"])
	require.NotContains(t, params, "webenv")
	require.NotContains(t, params, "query_key")

	citmatch, _ := Lookup("ecitmatch")
	params, err = citmatch.WireParams(core.Params{"citations": []string{"science|1987|235|182|palmenberg ac|Art1|", "nature|1990|343|140|smith j|Art2|"}})
	require.NoError(t, err)
	require.Equal(t, "science|1987|235|182|palmenberg ac|Art1|\rnature|1990|343|140|smith j|Art2|", params["bdata"])
	require.Equal(t, "pubmed", params["db"])

	post, _ := Lookup("epost")
	params, err = post.WireParams(core.Params{"db": "pubmed", "id_list": "11,12", "webenv": "MCID_9"})
	require.NoError(t, err)
	require.Equal(t, "MCID_9", params["WebEnv"])
	require.Equal(t, "11,12", params["id"])
}

func TestWireParamsRejectsBadIntegers(t *testing.T) {
	tool, _ := Lookup("esearch")
	_, err := tool.WireParams(core.Params{"db": "pubmed", "term": "x", "retmax": "lots"})
	require.Error(t, err)
}

func TestInputSchema(t *testing.T) {
	tool, _ := Lookup("elink")
	schema := tool.InputSchema()

	require.Equal(t, "object", schema["type"])
	require.Equal(t, []string{"dbfrom", "db"}, schema["required"])

	properties := schema["properties"].(map[string]any)
	idList := properties["id_list"].(map[string]any)
	require.Equal(t, TypeArray, idList["type"])
	require.Equal(t, map[string]any{"type": TypeString}, idList["items"])
	require.Equal(t, "neighbor", properties["cmd"].(map[string]any)["default"])
	require.Len(t, schema["anyOf"], 2)

	data, err := json.Marshal(schema)
	require.NoError(t, err)
	require.Contains(t, string(data), `"anyOf"`)

	empty, _ := Lookup(core.ToolGetDatabases)
	require.Equal(t, []string{}, empty.InputSchema()["required"])
}
