package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/spf13/cobra"

	"pkt.systems/storeconn"
	"pkt.systems/storeconn/internal/filelock"
	"pkt.systems/storeconn/location"
)

func newLockCommand(state *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect process locks of disk locations",
	}
	cmd.AddCommand(newLockStatusCommand(state))
	return cmd
}

func newLockStatusCommand(state *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status <dir>",
		Short: "Report whether another process holds the lock of a disk location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args[0])
			if err != nil {
				return err
			}
			if loc.Kind() != location.KindDisk {
				return fmt.Errorf("lock status: %s is not a disk location", loc)
			}
			st, err := filelock.Probe(loc.Path(storeconn.LockFileName))
			if err != nil {
				return err
			}
			state.subsystem("lock").Debug("probed lock", "path", st.Path, "locked", st.Locked, "pid", st.PID)
			return printLockStatus(cmd.Context(), cmd.OutOrStdout(), st, time.Now())
		},
	}
}

// holderInfo describes the process behind a pid.
type holderInfo struct {
	alive   bool
	name    string
	started time.Time
}

func lookupHolder(ctx context.Context, pid int) holderInfo {
	if pid <= 0 {
		return holderInfo{}
	}
	alive, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil || !alive {
		return holderInfo{}
	}
	info := holderInfo{alive: true}
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return info
	}
	if name, err := proc.NameWithContext(ctx); err == nil {
		info.name = name
	}
	if ms, err := proc.CreateTimeWithContext(ctx); err == nil && ms > 0 {
		info.started = time.UnixMilli(ms)
	}
	return info
}

func printLockStatus(ctx context.Context, w io.Writer, st filelock.Status, now time.Time) error {
	if !st.Exists {
		_, err := fmt.Fprintf(w, "lock:   %s\nstate:  absent\n", st.Path)
		return err
	}
	state := "free"
	switch {
	case st.HeldHere:
		state = "held by this process"
	case st.Locked:
		state = "held"
	}
	if _, err := fmt.Fprintf(w, "lock:   %s\nstate:  %s\nlast written: %s\n", st.Path, state, humanize.RelTime(st.ModTime, now, "ago", "from now")); err != nil {
		return err
	}
	pid := st.PID
	source := "kernel"
	if pid == 0 {
		pid = st.RecordedPID
		source = "recorded"
	}
	if pid == 0 {
		return nil
	}
	holder := lookupHolder(ctx, pid)
	line := "pid:    " + strconv.Itoa(pid) + " (" + source + ")"
	switch {
	case !holder.alive:
		line += " not running"
	case holder.name != "":
		line += " " + holder.name
	}
	if !holder.started.IsZero() {
		line += ", started " + humanize.RelTime(holder.started, now, "ago", "from now")
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
