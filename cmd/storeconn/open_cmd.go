package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pkt.systems/storeconn"
	"pkt.systems/storeconn/store"
)

func newOpenCommand(state *cli) *cobra.Command {
	local := viper.New()
	cmd := &cobra.Command{
		Use:   "open <location>",
		Short: "Connect to a location, print its connection details and release it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseLocation(args[0])
			if err != nil {
				return err
			}
			params, err := paramsFromViper(local, "")
			if err != nil {
				return err
			}
			reg, err := state.newRegistry(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer reg.Close(ctx)

			conn, err := reg.ConnectCreate(ctx, loc, &params)
			if err != nil {
				return err
			}
			if err := printConnection(cmd.OutOrStdout(), conn); err != nil {
				return err
			}
			return reg.Release(ctx, loc)
		},
	}
	flags := cmd.Flags()
	flags.String("block-size", "", "block size for a new location (e.g. 8KiB); persisted parameters win")
	flags.Int("read-cache-size", 0, "read cache size in blocks (0 keeps the default)")
	flags.Int("write-cache-size", 0, "write cache size in blocks (0 keeps the default)")
	flags.String("file-mode", "", "file access mode: mapped or direct")
	bindFlags(local, flags, "block-size", "read-cache-size", "write-cache-size", "file-mode")
	return cmd
}

func printConnection(w io.Writer, conn *storeconn.Connection) error {
	st, err := conn.Store()
	if err != nil {
		return err
	}
	p := st.Params()
	lockPath := conn.LockPath()
	if lockPath == "" {
		lockPath = "-"
	}
	_, err = fmt.Fprintf(w, "location:    %s\nconnection:  %s\nlock:        %s\nblock-size:  %s\nread-cache:  %d blocks\nwrite-cache: %d blocks\nfile-mode:   %s\n",
		conn.Location(),
		conn.ID(),
		lockPath,
		humanize.IBytes(uint64(p.BlockSize)),
		p.ReadCacheSize,
		p.WriteCacheSize,
		fileModeOrDefault(p.FileMode),
	)
	return err
}

func fileModeOrDefault(mode string) string {
	if mode == "" {
		return store.FileModeMapped
	}
	return mode
}
