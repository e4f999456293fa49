package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTree() *cobra.Command {
	root := &cobra.Command{Use: "unirankd"}
	AddHelpJSONFlag(root)

	serve := &cobra.Command{Use: "serve", Short: "Start the server", RunE: func(*cobra.Command, []string) error { return nil }}
	serve.Flags().String("port", "", "HTTP port")
	serve.Flags().Bool("verbose", false, "Chatty output")

	index := &cobra.Command{Use: "index"}
	create := &cobra.Command{Use: "create", RunE: func(*cobra.Command, []string) error { return nil }}
	create.Flags().String("index", "", "Index name")
	index.AddCommand(create)

	hidden := &cobra.Command{Use: "debug", Hidden: true, RunE: func(*cobra.Command, []string) error { return nil }}

	root.AddCommand(serve, index, hidden)
	return root
}

func TestGenerateSchema_EnvAnnotations(t *testing.T) {
	root := testTree()
	AnnotateEnv(root, map[string]string{"port": "UNIRANK_PORT", "index": "UNIRANK_INDEX_NAME"})

	schema := GenerateSchema(root)

	require.Len(t, schema.Subcommands, 2)
	serve := schema.Subcommands[1]
	if serve.Name != "serve" {
		serve = schema.Subcommands[0]
	}
	require.Equal(t, "serve", serve.Name)
	require.Len(t, serve.Flags, 2)
	for _, f := range serve.Flags {
		switch f.Name {
		case "port":
			assert.Equal(t, "UNIRANK_PORT", f.Env)
		case "verbose":
			assert.Empty(t, f.Env)
			assert.Equal(t, "false", f.Default)
		}
	}
}

func TestWriteSchema(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, WriteSchema(&out, testTree()))

	var decoded CommandSchema
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "unirankd", decoded.Name)
	for _, f := range decoded.Flags {
		assert.NotEqual(t, "help-json", f.Name)
	}
}

func TestHelpJSONTarget(t *testing.T) {
	root := testTree()

	cmd, ok := HelpJSONTarget(root, []string{"index", "create", "--help-json"})
	require.True(t, ok)
	assert.Equal(t, "create", cmd.Name())

	cmd, ok = HelpJSONTarget(root, []string{"--help-json"})
	require.True(t, ok)
	assert.Equal(t, root, cmd)

	_, ok = HelpJSONTarget(root, []string{"serve", "--port", "9000"})
	assert.False(t, ok)
}
