package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcshock/genopipe/config"
	"github.com/dcshock/genopipe/illuminus"
	"github.com/dcshock/genopipe/task"
)

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Bool("log-json", false, "")
	fs.Bool("verbose", false, "")
	fs.String("dispatcher", dispatchLocal, "")
	fs.String("ledger-dsn", "", "")
	fs.Int("max-jobs", 0, "")
	fs.Bool("reuse", false, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := loadSettings("", testFlags(t))
	require.NoError(t, err)
	assert.Equal(t, dispatchLocal, s.Dispatcher)
	assert.Equal(t, task.DefaultTools(), s.Tools)
	assert.Equal(t, "bsub", s.LSF.Bsub)
	assert.Equal(t, "bjobs", s.LSF.Bjobs)
	assert.False(t, s.Reuse)
}

func TestLoadSettingsPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "genopipe.yml")
	require.NoError(t, os.WriteFile(file, []byte(`
dispatcher: lsf
max_jobs: 4
tools:
  plink: /opt/plink/bin/plink
lsf:
  bsub: /usr/local/lsf/bin/bsub
`), 0o644))
	t.Setenv("GENOPIPE_TOOLS_ILLUMINUS", "/opt/illuminus")

	s, err := loadSettings(file, testFlags(t, "--max-jobs", "8", "--reuse"))
	require.NoError(t, err)
	assert.Equal(t, dispatchLSF, s.Dispatcher)
	assert.Equal(t, 8, s.MaxJobs, "flag overrides file")
	assert.True(t, s.Reuse)
	assert.Equal(t, "/opt/plink/bin/plink", s.Tools.Plink)
	assert.Equal(t, "/opt/illuminus", s.Tools.Illuminus)
	assert.Equal(t, "simtools", s.Tools.Simtools)
	assert.Equal(t, "/usr/local/lsf/bin/bsub", s.LSF.Bsub)
}

func TestLoadSettingsErrors(t *testing.T) {
	_, err := loadSettings("", testFlags(t, "--dispatcher", "slurm"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slurm")

	_, err = loadSettings(filepath.Join(t.TempDir(), "missing.yml"), testFlags(t))
	require.Error(t, err)
}

func TestNewDispatcher(t *testing.T) {
	s := settings{Dispatcher: dispatchLocal}
	_, ok := newDispatcher(s, 0).(*task.Local)
	assert.True(t, ok)

	s = settings{Dispatcher: dispatchLSF}
	s.LSF.Bsub = "bsub"
	s.LSF.Bjobs = "bjobs"
	d, ok := newDispatcher(s, 0).(*task.LSF)
	require.True(t, ok)
	assert.Equal(t, task.DefaultPollInterval, d.PollInterval)

	d = newDispatcher(s, 5*time.Second).(*task.LSF)
	assert.Equal(t, 5*time.Second, d.PollInterval)
}

func TestWorkflowsRegistry(t *testing.T) {
	reg := workflows(settings{Dispatcher: dispatchLocal, Tools: task.DefaultTools()})
	assert.Equal(t, []string{illuminus.WorkflowName}, reg.Names())

	def := &config.Definition{Workflow: illuminus.WorkflowName, Arguments: []interface{}{"db"}}
	passed, err := reg.Run(context.Background(), def, config.RunOptions{})
	require.Error(t, err)
	assert.False(t, passed)
	assert.ErrorIs(t, err, illuminus.ErrInvalidOptions)
}

func TestObserversRegistry(t *testing.T) {
	reg := observers(nil)
	_, ok := reg.Get(observerLog)
	assert.True(t, ok)
	_, ok = reg.Get(observerLedger)
	assert.False(t, ok, "ledger is only registered with a DSN")
}

func TestResumeLookup(t *testing.T) {
	lookup := resumeLookup(settings{Tools: task.DefaultTools()}, nil)
	assert.Nil(t, lookup("Genotyping::Workflows::Unknown"))

	fn := lookup(illuminus.WorkflowName)
	require.NotNil(t, fn)
	err := fn(context.Background(), "run-1", []byte("{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run-1")
}

func TestOpenLedgerWithoutDSN(t *testing.T) {
	_, _, err := openLedger(context.Background(), "")
	require.Error(t, err)
}
