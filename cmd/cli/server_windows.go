//go:build windows

package main

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr detaches an auto-started server from the terminal
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}
