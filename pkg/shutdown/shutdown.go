// Package shutdown handles fatal exits: crash dumps with goroutine
// stacks plus a machine-readable abort request, so a supervisor can tell
// a crash from a clean stop. Environment variables are deliberately not
// dumped; they may hold the gateway API key or the at-rest key.
package shutdown

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"zerozero/pkg/logger"
)

type exitRequest struct {
	Time      string            `json:"time"`
	Reason    string            `json:"reason"`
	Cmd       string            `json:"cmd"`
	CrashPath string            `json:"crash_path,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Abort writes diagnostics and exits with status 2. The delay gives log
// sinks time to flush; pass 0 in tests.
func Abort(contextMsg string, err error, dataPath string, delaySeconds ...int) {
	delay := 5
	if len(delaySeconds) > 0 && delaySeconds[0] >= 0 {
		delay = delaySeconds[0]
	}
	logger.Error("fatal", "msg", contextMsg, "error", err)
	dumpPath, reqPath, derr := WriteDiagnostics(dataPath, contextMsg, err)
	if derr != nil {
		logger.Error("crash_dump_failed", "error", derr)
		fmt.Fprintf(os.Stderr, "FAILED TO WRITE CRASH DUMP: %v\n", derr)
	} else {
		logger.Info("crash_dump_written", "path", dumpPath, "request", reqPath)
		fmt.Fprintf(os.Stderr, "CRASH DUMP WRITTEN: %s\n", dumpPath)
	}
	time.Sleep(time.Duration(delay) * time.Second)
	os.Exit(2)
}

// WriteDiagnostics writes the crash dump and the abort request that
// references it, both via temp-and-rename.
func WriteDiagnostics(dataPath, reason string, cause error) (string, string, error) {
	crashDir := filepath.Join(dataPath, "state", "crash")
	abortDir := filepath.Join(dataPath, "state", "abort")
	if err := os.MkdirAll(crashDir, 0o700); err != nil {
		return "", "", fmt.Errorf("create crash dir: %w", err)
	}
	if err := os.MkdirAll(abortDir, 0o700); err != nil {
		return "", "", fmt.Errorf("create abort dir: %w", err)
	}

	ts := time.Now().UnixNano()
	f, err := os.CreateTemp(crashDir, ".crash-*.tmp")
	if err != nil {
		return "", "", fmt.Errorf("create temp crash file: %w", err)
	}
	tmpName := f.Name()
	defer func() { _ = os.Remove(tmpName) }()

	fmt.Fprintf(f, "time: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(f, "reason: %s\n", reason)
	fmt.Fprintf(f, "error: %v\n", cause)
	fmt.Fprintf(f, "\n--- goroutine stacks ---\n")
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	f.Write(buf[:n])
	f.Sync()
	f.Close()

	dumpPath := filepath.Join(crashDir, fmt.Sprintf("crash-%d.log", ts))
	if err := os.Rename(tmpName, dumpPath); err != nil {
		return "", "", fmt.Errorf("move crash dump into place: %w", err)
	}
	_ = os.Chmod(dumpPath, 0o600)

	req := exitRequest{
		Time:      time.Now().UTC().Format(time.RFC3339),
		Reason:    reason,
		Cmd:       "crash",
		CrashPath: dumpPath,
		Meta:      map[string]string{"pid": fmt.Sprintf("%d", os.Getpid())},
	}
	reqBytes, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return dumpPath, "", err
	}
	rtmp, err := os.CreateTemp(abortDir, ".req-*.tmp")
	if err != nil {
		return dumpPath, "", fmt.Errorf("create temp req file: %w", err)
	}
	rname := rtmp.Name()
	if _, err := rtmp.Write(reqBytes); err != nil {
		rtmp.Close()
		_ = os.Remove(rname)
		return dumpPath, "", err
	}
	rtmp.Sync()
	rtmp.Close()

	reqPath := filepath.Join(abortDir, fmt.Sprintf("req-%d.json", ts))
	if err := os.Rename(rname, reqPath); err != nil {
		_ = os.Remove(rname)
		return dumpPath, "", fmt.Errorf("move req into place: %w", err)
	}
	_ = os.Chmod(reqPath, 0o600)
	return dumpPath, reqPath, nil
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
// A second signal exits immediately.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-ch
		logger.Info("signal_received", "signal", sig.String())
		cancel()
		<-ch
		logger.Warn("second_signal_forcing_exit")
		os.Exit(1)
	}()
	return ctx, cancel
}
