package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stopCmd, restartCmd)
}

// runningDaemon resolves the serve process recorded in foundry.pid under the
// data dir. Signal 0 verifies the PID still belongs to a live process before
// anything is sent to it.
func runningDaemon() (*os.Process, int, error) {
	cfg := loadConfig()
	pidPath := filepath.Join(cfg.DataDir, "foundry.pid")

	data, err := os.ReadFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("foundry is not running (no %s)", pidPath)
		}
		return nil, 0, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("invalid PID file content: %w", err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, 0, fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil, 0, fmt.Errorf("foundry is not running (stale PID %d)", pid)
	}
	return proc, pid, nil
}

func signalDaemon(sig syscall.Signal, verb string) error {
	proc, pid, err := runningDaemon()
	if err != nil {
		return err
	}
	if err := proc.Signal(sig); err != nil {
		return fmt.Errorf("send %s: %w", sig, err)
	}
	fmt.Fprintf(os.Stdout, "Asked the daemon (PID %d) to %s.\n", pid, verb)
	return nil
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Shut down the foundry daemon",
	Long:  "Shut down the foundry daemon. Workspace, chat, and preview state are on disk already; the next serve picks them up.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return signalDaemon(syscall.SIGTERM, "shut down")
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the foundry daemon in place",
	Long:  "Restart the foundry daemon in place, re-reading the configuration file. The daemon re-execs itself, so the address and data dir may change without a manual stop/serve cycle.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return signalDaemon(syscall.SIGHUP, "restart")
	},
}
