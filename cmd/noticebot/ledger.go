package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"noticebot/internal/app"
	"noticebot/internal/config"
	"noticebot/internal/ledger"
	logx "noticebot/pkg/logx"
)

func newLedgerCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or pre-seed the delivered-notice ledger",
	}
	cmd.AddCommand(newLedgerListCmd(cfgPath), newLedgerMarkCmd(cfgPath))
	return cmd
}

func openLedger(cmd *cobra.Command, cfgPath string) (*ledger.Ledger, error) {
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		return nil, err
	}
	return app.OpenLedger(cmd.Context(), cfg, logx.NewConsole("warn"))
}

func newLedgerListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every delivered notice id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger(cmd, *cfgPath)
			if err != nil {
				return err
			}
			defer l.Close()
			for _, id := range l.IDs() {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func newLedgerMarkCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mark <id>...",
		Short: "Record notice ids as delivered so they are never sent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, a := range args {
				id, err := strconv.ParseInt(a, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid notice id %q", a)
				}
				ids = append(ids, id)
			}
			l, err := openLedger(cmd, *cfgPath)
			if err != nil {
				return err
			}
			defer l.Close()
			for _, id := range ids {
				if err := l.Commit(cmd.Context(), id); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked %d, ledger size %d\n", len(ids), l.Len())
			return nil
		},
	}
}
