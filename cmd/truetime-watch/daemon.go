package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/sevlyar/go-daemon"
)

const daemonName = "truetime-watchd"

// watchDaemon wraps the PID-file/log-file bookkeeping go-daemon needs to
// re-exec this binary in the background and later find and signal that
// background copy. reborn, release and stop are the only operations
// runAsDaemon needs from it.
type watchDaemon struct {
	ctx *daemon.Context
}

func newWatchDaemon(name string) *watchDaemon {
	return &watchDaemon{
		ctx: &daemon.Context{
			PidFileName: fmt.Sprintf("/var/run/%s.pid", name),
			PidFilePerm: 0644,
			LogFileName: fmt.Sprintf("/var/log/%s.log", name),
			LogFilePerm: 0640,
			WorkDir:     "./",
			Umask:       027,
			Args:        append([]string{name}, os.Args[1:]...),
		},
	}
}

// reborn re-execs the current binary detached from the terminal. The
// parent invocation gets back a non-nil *os.Process and should exit;
// the re-exec'd child continues running as the daemon.
func (d *watchDaemon) reborn() (*os.Process, error) {
	return d.ctx.Reborn()
}

// release lets the running daemon clean up its PID file as it exits.
func (d *watchDaemon) release() error {
	return d.ctx.Release()
}

// stop finds the already-running daemon by its PID file and asks it to
// exit via SIGTERM.
func (d *watchDaemon) stop() error {
	proc, err := d.ctx.Search()
	if err != nil {
		return fmt.Errorf("finding truetime-watch daemon: %w", err)
	}
	if err := syscall.Kill(proc.Pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("stopping truetime-watch daemon: %w", err)
	}
	return nil
}
