package task

import (
	"context"
	"strings"

	"github.com/dcshock/genopipe/illuminus"
)

// Job is a unit of work for a Dispatcher: commands run in order in Dir, stopping
// at the first that fails. Output of every command is appended to LogFile.
type Job struct {
	Name     string
	Commands [][]string
	Dir      string
	Async    illuminus.Async
	LogFile  string
}

// Dispatcher runs jobs. The returned exit code is that of the first failing
// command, or 0. An error means the job could not be run or waited for.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) (exitCode int, err error)
}

// shellScript joins the commands of a job into one sh script that stops at the
// first failure.
func shellScript(cmds [][]string) string {
	lines := make([]string, 0, len(cmds))
	for _, argv := range cmds {
		quoted := make([]string, len(argv))
		for i, a := range argv {
			quoted[i] = shellQuote(a)
		}
		lines = append(lines, strings.Join(quoted, " "))
	}
	return strings.Join(lines, " && ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:,+@%", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
