package engine

import (
	"os/exec"
	"strings"
)

// CommandRunner abstracts command execution for GPU probing so tests can
// exercise both probe outcomes without an NVIDIA driver installed.
type CommandRunner interface {
	// Run executes the command and returns its combined output.
	Run(name string, args ...string) ([]byte, error)
}

// ExecRunner implements CommandRunner with os/exec.
type ExecRunner struct{}

// Run executes the command and returns combined stdout+stderr.
func (ExecRunner) Run(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// MockRunner implements CommandRunner for tests.
type MockRunner struct {
	// Output is returned from Run.
	Output []byte
	// Err is returned from Run.
	Err error
	// Calls records each invocation as name followed by its args.
	Calls [][]string
}

// Run records the call and returns the configured output and error.
func (m *MockRunner) Run(name string, args ...string) ([]byte, error) {
	m.Calls = append(m.Calls, append([]string{name}, args...))
	return m.Output, m.Err
}

// DetectLocalGPU probes for a local NVIDIA GPU via nvidia-smi and returns
// the first device name. Used at startup to cross-check the worker's
// capability report against the host, not as the source of truth: the
// worker may run on another machine.
func DetectLocalGPU(r CommandRunner) (name string, ok bool) {
	if r == nil {
		r = ExecRunner{}
	}
	out, err := r.Run("nvidia-smi", "--query-gpu=name", "--format=csv,noheader")
	if err != nil {
		return "", false
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return "", false
	}
	return strings.TrimSpace(lines[0]), true
}
