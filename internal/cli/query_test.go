package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/entq/internal/queryerr"
)

func queryArgs(args ...string) []string {
	return append([]string{"--schema", "testdata/orders.cue", "--seed", "testdata/orders.yaml"}, args...)
}

func TestQuery_Where(t *testing.T) {
	out, err := execute(t, append([]string{"query"}, queryArgs("--where", `e.total >= 40 && e.total < 100`, "--select", "[e.total]")...)...)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.ElementsMatch(t, []string{"p1/o2\t80", "p2/o3\t40"}, lines)
}

func TestQuery_WholeEntity(t *testing.T) {
	out, err := execute(t, append([]string{"query"}, queryArgs("--where", `e.note == "late"`)...)...)
	require.NoError(t, err)
	assert.Equal(t, "p2/o3\t"+`{"note":"late","status":"closed","total":40}`+"\n", out)
}

func TestQuery_Named(t *testing.T) {
	out, err := execute(t, append([]string{"query"}, queryArgs("--query", "openOrders")...)...)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.ElementsMatch(t, []string{"p1/o1\t120", "p2/o4\t10"}, lines)
}

func TestQuery_FlagsOverrideNamed(t *testing.T) {
	out, err := execute(t, append([]string{"query"}, queryArgs("--query", "openOrders", "--where", `e.total > 100`)...)...)
	require.NoError(t, err)
	assert.Equal(t, "p1/o1\t120\n", out)
}

func TestQuery_Take(t *testing.T) {
	out, err := execute(t, append([]string{"query"}, queryArgs("--take", "2")...)...)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)
}

func TestQuery_JSON(t *testing.T) {
	out, err := execute(t, append([]string{"query", "--format", "json"}, queryArgs("--where", `e.status == "open"`, "--select", "[e.total, e.created]")...)...)
	require.NoError(t, err)

	resp := decode(t, out)
	assert.Equal(t, "ok", resp.Status)
	rows := resp.Data.([]any)
	require.Len(t, rows, 2)

	byKey := map[string][]any{}
	for _, r := range rows {
		row := r.(map[string]any)
		assert.NotEmpty(t, row["etag"])
		byKey[row["key"].(string)] = row["values"].([]any)
	}
	assert.Equal(t, []any{float64(120), "2024-01-02T00:00:00.000000000Z"}, byKey["p1/o1"])
	assert.Equal(t, []any{float64(10), nil}, byKey["p2/o4"])
}

func TestQuery_Errors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		exitCode int
		contains string
	}{
		{
			name:     "bad predicate",
			args:     queryArgs("--where", "e.total >"),
			exitCode: ExitFailure,
		},
		{
			name:     "negative take",
			args:     queryArgs("--take", "-1"),
			exitCode: ExitFailure,
			contains: string(queryerr.CodeInvalidArgument),
		},
		{
			name:     "unknown named query",
			args:     queryArgs("--query", "nope"),
			exitCode: ExitFailure,
			contains: `query "nope" is not declared`,
		},
		{
			name:     "unknown strategy",
			args:     queryArgs("--strategy", "Fastest"),
			exitCode: ExitFailure,
		},
		{
			name:     "tag strategy without tags",
			args:     queryArgs("--where", `e.status == "open"`, "--strategy", "TagQuery"),
			exitCode: ExitFailure,
			contains: string(queryerr.CodeConfigMisuse),
		},
		{
			name:     "missing schema",
			args:     []string{"--where", `e.status == "open"`},
			exitCode: ExitCommandError,
		},
		{
			name:     "missing seed file",
			args:     []string{"--schema", "testdata/orders.cue", "--seed", "testdata/missing.yaml"},
			exitCode: ExitCommandError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.name == "tag strategy without tags" {
				t.Setenv("ENTQ_STORE_TAG_INDEXING", "false")
			}
			out, err := execute(t, append([]string{"query"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.exitCode, GetExitCode(err))
			if tt.contains != "" {
				assert.Contains(t, out, tt.contains)
			}
		})
	}
}

func TestQuery_SQLiteRoundTrip(t *testing.T) {
	cfg := sqliteConfig(t)

	out, err := execute(t, "load", "testdata/orders.yaml", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, "stored 4 Order entit(ies)\n", out)

	// A second process sees what the first one stored.
	out, err = execute(t, "query", "--config", cfg, "--where", `e.status == "closed"`, "--select", "[e.total]")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.ElementsMatch(t, []string{"p1/o2\t80", "p2/o3\t40"}, lines)
}

func TestExplain(t *testing.T) {
	out, err := execute(t, "explain", "--schema", "testdata/orders.cue", "--where", `e.status == "open"`, "--take", "5")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "strategy: TagQuery\n"), out)
	assert.Contains(t, out, "projection: <entity>\n")
	assert.Contains(t, out, "take: 5\n")
}

func TestExplain_NativeWithoutTags(t *testing.T) {
	t.Setenv("ENTQ_STORE_TAG_INDEXING", "false")

	out, err := execute(t, "explain", "--schema", "testdata/orders.cue", "--where", `e.total > 100`, "--format", "json")
	require.NoError(t, err)

	resp := decode(t, out)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "NativeQuery", data["strategy"])
	assert.Contains(t, data["lines"], "strategy: NativeQuery")
}

func TestDelete(t *testing.T) {
	cfg := sqliteConfig(t)
	_, err := execute(t, "load", "testdata/orders.yaml", "--config", cfg)
	require.NoError(t, err)

	out, err := execute(t, "delete", "--config", cfg, "--query", "closedOrders", "--transaction")
	require.NoError(t, err)
	assert.Equal(t, "deleted 2 entit(ies)\n", out)

	out, err = execute(t, "delete", "--config", cfg, "--where", `e.total < 50`, "--format", "json")
	require.NoError(t, err)
	resp := decode(t, out)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(1), data["deleted"])
	assert.Equal(t, false, data["transaction"])
	assert.Equal(t, "FullScanCompiled", data["strategy"])

	out, err = execute(t, "query", "--config", cfg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "p1/o1\t"), out)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 1)
}

func TestLoad_Errors(t *testing.T) {
	_, err := execute(t, "load", "testdata/missing.yaml", "--schema", "testdata/orders.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "load", "testdata/orders.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no schema")
}
