package task

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dcshock/genopipe/illuminus"
	"github.com/dcshock/genopipe/pipeline"
)

// fakeLSF answers bsub with a job ID and bjobs with the next of states.
type fakeLSF struct {
	mu     sync.Mutex
	bsub   []string
	polls  int
	states []string
	submit string
}

func (f *fakeLSF) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch name {
	case "bsub":
		f.bsub = args
		if f.submit != "" {
			return []byte(f.submit), nil
		}
		return []byte("Job <4242> is submitted to queue <normal>.\n"), nil
	case "bjobs":
		if args[len(args)-1] != "4242" {
			return nil, errors.Newf("unexpected job id %s", args[len(args)-1])
		}
		i := f.polls
		f.polls++
		if i >= len(f.states) {
			i = len(f.states) - 1
		}
		return []byte(f.states[i] + "\n"), nil
	}
	return nil, errors.Newf("unexpected command %s", name)
}

func newTestLSF(f *fakeLSF) *LSF {
	l := NewLSF("bsub", "bjobs")
	l.PollInterval = time.Millisecond
	l.Timeout = time.Second
	l.Run = f.run
	return l
}

var lsfJob = Job{
	Name:     "gtc_to_bed.run.bed",
	Commands: [][]string{{"genotype-call", "gtc-to-bed", "--output", "/w/run.bed"}, {"touch", "/w/done"}},
	Dir:      "/w",
	Async:    illuminus.Async{Memory: 2048, Queue: "long"},
	LogFile:  "/w/log/gtc_to_bed.run.bed.log",
}

func TestLSF_Done(t *testing.T) {
	f := &fakeLSF{states: []string{"PEND -", "RUN -", "DONE -"}}
	code, err := newTestLSF(f).Dispatch(context.Background(), lsfJob)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, 3, f.polls)

	assert.Equal(t, []string{
		"-J", "gtc_to_bed.run.bed",
		"-o", "/w/log/gtc_to_bed.run.bed.log",
		"-q", "long",
		"-M", "2048", "-R", "select[mem>2048] rusage[mem=2048]",
		"-cwd", "/w",
		"/bin/sh -c 'genotype-call gtc-to-bed --output /w/run.bed && touch /w/done'",
	}, f.bsub)
}

func TestLSF_CommandLineKeepsArguments(t *testing.T) {
	f := &fakeLSF{states: []string{"DONE -"}}
	job := lsfJob
	job.Commands = [][]string{{"echo", "first"}, {"echo", "it's", "second"}}
	_, err := newTestLSF(f).Dispatch(context.Background(), job)
	require.NoError(t, err)

	// LSF runs the joined command line with the user's shell.
	line := f.bsub[len(f.bsub)-1]
	out, err := exec.Command("/bin/sh", "-c", line).Output()
	require.NoError(t, err)
	assert.Equal(t, "first\nit's second\n", string(out))
}

func TestLSF_Exit(t *testing.T) {
	for state, want := range map[string]int{"EXIT 2": 2, "EXIT -": 1, "EXIT": 1} {
		f := &fakeLSF{states: []string{state}}
		code, err := newTestLSF(f).Dispatch(context.Background(), lsfJob)
		require.NoError(t, err, state)
		assert.Equal(t, want, code, state)
	}
}

func TestLSF_Errors(t *testing.T) {
	f := &fakeLSF{submit: "Request aborted by esub. Job not submitted.", states: []string{"DONE -"}}
	_, err := newTestLSF(f).Dispatch(context.Background(), lsfJob)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unexpected output"))

	f = &fakeLSF{states: []string{"RUN -"}}
	l := newTestLSF(f)
	l.Timeout = 20 * time.Millisecond
	_, err = l.Dispatch(context.Background(), lsfJob)
	assert.True(t, errors.Is(err, pipeline.ErrTimeout))

	_, err = newTestLSF(&fakeLSF{}).Dispatch(context.Background(), Job{Name: "empty"})
	assert.Error(t, err)
}

func TestParseJobState(t *testing.T) {
	_, _, err := parseJobState([]byte("  \n"))
	assert.Error(t, err)

	stat, code, err := parseJobState([]byte("RUN -\n"))
	require.NoError(t, err)
	assert.Equal(t, "RUN", stat)
	assert.Zero(t, code)
}
