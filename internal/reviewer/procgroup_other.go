//go:build !unix

package reviewer

import "os/exec"

// killProcessGroup keeps exec's default of killing only the process.
func killProcessGroup(cmd *exec.Cmd) {}
