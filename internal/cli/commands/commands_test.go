package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/tuplizer/internal/orm/storage"
)

const testMappings = `
entities:
  - name: Customer
    table: customers
    identifier: {name: id, type: int, strategy: assigned}
    attributes:
      - {name: name, type: string}
      - {name: organization, type: association, target: Organization, nullable: true}
  - name: Organization
    identifier: {name: id, type: int, strategy: assigned}
    attributes:
      - {name: title, type: string}
  - name: Note
    mode: typed-object
    attributes:
      - {name: body, type: string}
`

// project writes a tuplizer.yaml over a sqlite file and returns its path
func project(t *testing.T, mappings string) string {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "mappings"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mappings", "entities.yaml"), []byte(mappings), 0644))

	cfg := "mapping:\n  paths: [mappings]\n" +
		"storage:\n  driver: sqlite3\n  dsn: " + filepath.Join(dir, "tuplizer.db") + "\n" +
		"log:\n  level: error\n"
	path := filepath.Join(dir, "tuplizer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return path
}

func run(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(append([]string{"--config", configPath, "--no-color"}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	assert.Equal(t, "tuplizer", cmd.Use)
	assert.NotEmpty(t, cmd.Short)

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, expected := range []string{"check", "inspect", "get", "put", "serve", "version", "completion"} {
		assert.Contains(t, names, expected)
	}
}

func TestVersionCommand(t *testing.T) {
	Version = "1.0.0-test"
	GitCommit = "abc123"

	cmd := NewRootCommand()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetArgs([]string{"version", "--no-color"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "tuplizer version: 1.0.0-test")
	assert.Contains(t, out.String(), "Git commit: abc123")
}

func TestCompletionCommand(t *testing.T) {
	cmd := NewRootCommand()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetArgs([]string{"completion", "bash"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "tuplizer")

	cmd = NewRootCommand()
	cmd.SetArgs([]string{"completion", "tcsh"})
	assert.Error(t, cmd.Execute())
}

func TestCheckCommand(t *testing.T) {
	path := project(t, testMappings)

	out, _, err := run(t, path, "check")
	require.NoError(t, err)
	assert.Equal(t, "✓ 2 entities bound in dynamic-map mode, 1 in other modes verified\n", out)
}

func TestCheckCommand_Failures(t *testing.T) {
	tests := []struct {
		name     string
		mappings string
		expected []string
	}{
		{
			name: "unknown factory",
			mappings: `
entities:
  - name: Customer
    tuplizer: {dynamic-map: nosuch}
    attributes:
      - {name: name, type: string}
`,
			expected: []string{"BINDING FAILED: 1 of 1 entities", "nosuch"},
		},
		{
			name: "unregistered target",
			mappings: `
entities:
  - name: Customer
    attributes:
      - {name: organization, type: association, target: Organization}
`,
			expected: []string{"INVALID METADATA", "Customer.organization"},
		},
		{
			name: "bad attribute type",
			mappings: `
entities:
  - name: Customer
    attributes:
      - {name: name, type: varchar}
`,
			expected: []string{"MAPPING ERROR", "entity Customer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := run(t, project(t, tt.mappings), "check")
			require.ErrorIs(t, err, ErrCheckFailed)
			for _, s := range tt.expected {
				assert.Contains(t, out, s)
			}
		})
	}
}

func TestInspectCommand(t *testing.T) {
	path := project(t, testMappings)

	out, _, err := run(t, path, "inspect")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[2], "Customer"))
	assert.Contains(t, lines[3], "typed-object")

	out, _, err = run(t, path, "inspect", "Customer")
	require.NoError(t, err)
	assert.Contains(t, out, "Table:      customers")
	assert.Contains(t, out, "Identifier: id int (assigned)")
	assert.Contains(t, out, "Organization (lazy, none)")

	out, _, err = run(t, path, "inspect", "Note", "--mode", "typed-object", "--json")
	require.NoError(t, err)
	var view map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "Note", view["name"])
	assert.Nil(t, view["identifier"])
}

func TestInspectCommand_UnknownEntity(t *testing.T) {
	_, stderr, err := run(t, project(t, testMappings), "inspect", "Custmer")
	require.Error(t, err)
	assert.Contains(t, stderr, "ENTITY NOT FOUND")
	assert.Contains(t, stderr, "Did you mean: Customer?")
}

func TestPutAndGet(t *testing.T) {
	path := project(t, testMappings)

	out, _, err := run(t, path, "put", "Organization", `{"id": 5, "title": "Acme"}`)
	require.NoError(t, err)
	assert.Equal(t, "✓ saved 1 Organization\n", out)

	out, _, err = run(t, path, "put", "Customer",
		`[{"id": 1, "name": "Ann", "organization": 5}, {"id": 2, "name": "Bob", "organization": null}]`)
	require.NoError(t, err)
	assert.Equal(t, "✓ saved 2 Customer\n", out)

	out, _, err = run(t, path, "get", "Customer", "1", "--json")
	require.NoError(t, err)
	var row map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &row))
	assert.Equal(t, map[string]interface{}{"id": float64(1), "name": "Ann", "organization": float64(5)}, row)

	out, _, err = run(t, path, "get", "Customer", "2")
	require.NoError(t, err)
	assert.Equal(t, "id:           2\nname:         Bob\norganization: null\n", out)
}

func TestPutCommand_Errors(t *testing.T) {
	path := project(t, testMappings)

	_, _, err := run(t, path, "put", "Customer", `{"id": 1, "nickname": "A"}`)
	assert.ErrorContains(t, err, "Customer has no attribute nickname")

	_, _, err = run(t, path, "put", "Customer", `{"id": 1`)
	assert.ErrorContains(t, err, "invalid json")

	_, _, err = run(t, path, "put", "Customer", `{"name": "no id"}`)
	assert.Error(t, err)

	_, _, err = run(t, path, "put", "Customer", "  ")
	assert.ErrorContains(t, err, "no input")
}

func TestPutCommand_Stdin(t *testing.T) {
	path := project(t, testMappings)

	cmd := NewRootCommand()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetIn(strings.NewReader(`{"id": 3, "title": "Globex"}`))
	cmd.SetArgs([]string{"--config", path, "--no-color", "put", "Organization"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "✓ saved 1 Organization\n", out.String())
}

func TestGetCommand_NotFound(t *testing.T) {
	_, stderr, err := run(t, project(t, testMappings), "get", "Customer", "9")
	require.Error(t, err)
	assert.True(t, storage.IsNotFound(err))
	assert.Contains(t, stderr, "INSTANCE NOT FOUND: Customer 9")
}

func TestDecodeObjects(t *testing.T) {
	objects, err := decodeObjects([]byte(` [{"a": 1}, {"b": 2}] `))
	require.NoError(t, err)
	assert.Len(t, objects, 2)

	objects, err = decodeObjects([]byte(`{"a": 1}`))
	require.NoError(t, err)
	assert.Equal(t, []map[string]interface{}{{"a": float64(1)}}, objects)
}
