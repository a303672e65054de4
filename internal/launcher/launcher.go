package launcher

import (
	"os/exec"
	"path/filepath"

	"ratupdater/internal/failure"
)

// Start spawns root/executable with root as its working directory and
// returns without waiting for it.
func Start(root, executable string) error {
	path := filepath.Join(root, executable)
	cmd := exec.Command(path)
	cmd.Dir = root
	if err := cmd.Start(); err != nil {
		return failure.New(failure.LaunchFailed, "start "+path, err)
	}
	if err := cmd.Process.Release(); err != nil {
		return failure.New(failure.LaunchFailed, "release "+path, err)
	}
	return nil
}
