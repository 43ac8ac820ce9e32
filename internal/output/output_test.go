package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestInfo(t *testing.T) {
	u, out, errOut := newTestUI()
	u.Info("hello %s", "world")
	assert.Contains(t, errOut.String(), "hello world")
	assert.Empty(t, out.String(), "status lines must not reach stdout")
}

func TestSuccess(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Success("done %d", 42)
	assert.Contains(t, errOut.String(), "done 42")
}

func TestQuietSuppressesInfoAndSuccess(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Quiet = true
	u.Info("hidden")
	u.Success("hidden")
	assert.Empty(t, errOut.String())

	u.Warning("shown")
	assert.Contains(t, errOut.String(), "shown")
}

func TestWarning(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Warning("careful %s", "now")
	assert.Contains(t, errOut.String(), "careful now")
}

func TestError(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Error("failed %s", "badly")
	assert.Contains(t, errOut.String(), "failed badly")
}

func TestVerboseLog_Enabled(t *testing.T) {
	u, out, errOut := newTestUI()
	u.Verbose = true
	u.VerboseLog("detail %d", 1)
	assert.Contains(t, errOut.String(), "detail 1")
	assert.Empty(t, out.String())
}

func TestVerboseLog_Disabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Verbose = false
	u.VerboseLog("detail %d", 1)
	assert.Empty(t, errOut.String())
}

func TestDryRunMsg_Enabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = true
	u.DryRunMsg("would create %s", "branch")
	assert.Contains(t, errOut.String(), "[DRY-RUN]")
	assert.Contains(t, errOut.String(), "would create branch")
}

func TestDryRunMsg_Disabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = false
	u.DryRunMsg("would create %s", "branch")
	assert.Empty(t, errOut.String())
}

func TestPrint(t *testing.T) {
	u, out, errOut := newTestUI()
	u.Print("feat: add login")
	assert.Equal(t, "feat: add login\n", out.String())
	assert.Empty(t, errOut.String())
}

func TestColorHelpers(t *testing.T) {
	assert.NotEmpty(t, Cyan("test"))
	assert.NotEmpty(t, Green("test"))
	assert.NotEmpty(t, Yellow("test"))
	assert.NotEmpty(t, Red("test"))
}

func TestSourceColor(t *testing.T) {
	assert.NotEmpty(t, SourceColor("env"))
	assert.NotEmpty(t, SourceColor("file"))
	assert.Equal(t, "default", SourceColor("default"))
}

func TestTable(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.Table([]string{"Key", "Value"})
	require.NotNil(t, table)

	table.Append([]string{"language", "Japanese"})
	table.Append([]string{"generator.backend", "auto"})
	err := table.Render()
	require.NoError(t, err)

	result := strings.ToLower(out.String())
	assert.Contains(t, result, "language")
	assert.Contains(t, result, "generator.backend")
}
