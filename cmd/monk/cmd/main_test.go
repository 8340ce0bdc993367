package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mpapi-go/mpapi/internal/testutil"
)

// resetFlags restores the package level flag variables after a test.
func resetFlags(t *testing.T) {
	t.Helper()
	saved := []any{cfgFile, jobsFile, outputDir, logLevel, prettyLogs, chunkSize, parallelChunks, concurrencyBudget, runForce, definitionOut}
	t.Cleanup(func() {
		cfgFile = saved[0].(string)
		jobsFile = saved[1].(string)
		outputDir = saved[2].(string)
		logLevel = saved[3].(string)
		prettyLogs = saved[4].(bool)
		chunkSize = saved[5].(int)
		parallelChunks = saved[6].(int)
		concurrencyBudget = saved[7].(int)
		runForce = saved[8].(bool)
		definitionOut = saved[9].(string)
	})
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(t)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// newMockServer serves three objects of group 182397 that reference
// Person 100 and Address 900.
func newMockServer(t *testing.T) *testutil.MockRIA {
	t.Helper()
	mock := testutil.NewMockRIA()
	t.Cleanup(mock.Close)

	for _, id := range []int64{1, 2, 3} {
		mock.AddItems("Object", testutil.Item{
			ID:     id,
			Fields: map[string]string{"ObjObjectGroupsRef.__id": "182397"},
			Refs:   map[string][]int64{"Person": {100}, "Address": {900}},
		})
	}
	mock.AddItems("Person", testutil.Item{ID: 100})
	mock.AddItems("Address", testutil.Item{ID: 900})
	mock.SetDefinition("Object", `<application><modules><module name="Object"/></modules></application>`)
	return mock
}

// writeMonkConfig writes a configuration pointing at mock and output.
func writeMonkConfig(t *testing.T, dir string, mock *testutil.MockRIA, output string) string {
	t.Helper()
	return writeFile(t, dir, "monk.yaml", `
server:
  base_url: `+mock.URL()+`
  user: tester
  password: secret
output:
  dir: `+output+`
logging:
  level: error
`)
}
