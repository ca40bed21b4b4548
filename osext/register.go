package osext

import (
	"context"
	"os"
	"strconv"
	"sync"

	"github.com/grafana/webdriver-launcher/log"
)

type processState struct {
	pid   int
	runID string
}

var (
	processRegister   = map[string]*processState{} //nolint:gochecknoglobals
	processRegisterMu = sync.Mutex{}               //nolint:gochecknoglobals
)

func processKey(pid int, runID string) string {
	return strconv.Itoa(pid) + runID
}

// Register records a driver process started for the run in ctx
// so that ForceProcessShutdown can kill it.
func Register(ctx context.Context, logger *log.Logger, pid int) {
	processRegisterMu.Lock()
	defer processRegisterMu.Unlock()

	rID := GetRunID(ctx)
	logger.Debugf("Process:register", "registered process pid %d rid %q", pid, rID)

	processRegister[processKey(pid, rID)] = &processState{pid: pid, runID: rID}
}

// Unregister forgets a process that has exited.
func Unregister(ctx context.Context, pid int) {
	processRegisterMu.Lock()
	defer processRegisterMu.Unlock()

	delete(processRegister, processKey(pid, GetRunID(ctx)))
}

// Registered returns the pids registered for the run in ctx. An empty
// run ID returns every registered pid.
func Registered(ctx context.Context) []int {
	processRegisterMu.Lock()
	defer processRegisterMu.Unlock()

	rID := GetRunID(ctx)
	pids := make([]int, 0, len(processRegister))
	for _, p := range processRegister {
		if rID != "" && p.runID != rID {
			continue
		}
		pids = append(pids, p.pid)
	}
	return pids
}

// ForceProcessShutdown should be called when the launcher is having to
// shut down due to an internal error or an interrupt. It kills every
// driver process of the run in ctx, or every process when ctx carries
// no run ID.
func ForceProcessShutdown(ctx context.Context) {
	processRegisterMu.Lock()
	defer processRegisterMu.Unlock()

	rID := GetRunID(ctx)
	for k, p := range processRegister {
		if rID != "" && p.runID != rID {
			continue
		}
		Kill(p.pid)
		delete(processRegister, k)
	}
}

// Kill will look for and kill the process with the
// given pid. This is only being exported to allow
// tests to override it so that in those tests the
// test process itself isn't killed.
var Kill = func(pid int) { //nolint:gochecknoglobals
	p, err := os.FindProcess(pid)
	if err != nil {
		// optimistically continue and don't kill the process
		return
	}
	// no need to check the error since we're already dying.
	_ = p.Kill()
	_ = p.Release()
}
