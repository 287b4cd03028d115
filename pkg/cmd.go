package pkg

import (
	"os"
	"os/exec"
)

// NewCommand prepares name with args in dir, inheriting the current environment plus extraEnv.
// Streams are left unset so the caller can pipe them.
func NewCommand(dir string, name string, extraEnv []string, args ...string) *exec.Cmd {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), extraEnv...)
	return cmd
}
