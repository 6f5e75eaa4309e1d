package schedule

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/google/shlex"

	"mnsched/internal/store"
)

// ArgKind tags how a job's args column was written.
type ArgKind int

const (
	// ArgsTokenized is a shell-style string ("--flag 'quoted value'").
	ArgsTokenized ArgKind = iota
	// ArgsJSONArray is an explicit JSON array of strings.
	ArgsJSONArray
)

// ArgSpec is a job's argument list, decided once at parse time rather
// than sniffed per dispatch. The two encodings exist because jobs were
// entered by hand over years; both survive.
type ArgSpec struct {
	Kind ArgKind
	argv []string
}

// ParseArgSpec parses the raw args column. A leading '[' selects the
// JSON-array form; anything else is tokenized with POSIX shell rules
// (quoting, escaping). An empty string is a valid empty spec.
func ParseArgSpec(raw string) (ArgSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ArgSpec{Kind: ArgsTokenized}, nil
	}
	if strings.HasPrefix(s, "[") {
		var argv []string
		if err := json.Unmarshal([]byte(s), &argv); err != nil {
			return ArgSpec{}, fmt.Errorf("args is not a JSON string array: %w", err)
		}
		return ArgSpec{Kind: ArgsJSONArray, argv: argv}, nil
	}
	argv, err := shlex.Split(s)
	if err != nil {
		return ArgSpec{}, fmt.Errorf("args failed shell tokenization: %w", err)
	}
	return ArgSpec{Kind: ArgsTokenized, argv: argv}, nil
}

// Argv returns the parsed argument vector (never nil).
func (a ArgSpec) Argv() []string {
	if a.argv == nil {
		return []string{}
	}
	return a.argv
}

const systemPython = "/usr/bin/python3"

// BuildArgv assembles the full command line for a job. Python scripts run
// under the job's virtualenv interpreter (or the system python); anything
// else executes directly.
func BuildArgv(j *store.Job, spec ArgSpec) []string {
	args := spec.Argv()
	if strings.HasSuffix(j.ProgramPath, ".py") {
		py := systemPython
		if j.VenvPath.Valid && strings.TrimSpace(j.VenvPath.String) != "" {
			py = path.Join(j.VenvPath.String, "bin", "python")
		}
		return append([]string{py, j.ProgramPath}, args...)
	}
	return append([]string{j.ProgramPath}, args...)
}
