package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"noticebot/internal/captcha"
	logx "noticebot/pkg/logx"
)

func newSolveCmd() *cobra.Command {
	var (
		token                string
		count, saltLen, diff int
		workers              int
		timeout              time.Duration
	)
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve a proof-of-work challenge offline and print the nonces as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := captcha.NewSolver(captcha.Config{Workers: workers, Timeout: timeout}, logx.NewConsole("warn"))
			start := time.Now()
			nonces, err := s.Solve(cmd.Context(), token, count, saltLen, diff)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(struct {
				Token     string   `json:"token"`
				Solutions []uint64 `json:"solutions"`
				TookMS    int64    `json:"took_ms"`
			}{token, nonces, time.Since(start).Milliseconds()})
		},
	}
	f := cmd.Flags()
	f.StringVar(&token, "token", "", "challenge token")
	f.IntVar(&count, "count", 0, "number of sub-challenges (c)")
	f.IntVar(&saltLen, "salt-len", 32, "salt length (s)")
	f.IntVar(&diff, "difficulty", 4, "target prefix length (d)")
	f.IntVar(&workers, "workers", 0, "parallel searches, 0 means one per CPU")
	f.DurationVar(&timeout, "timeout", 2*time.Minute, "give up after this long")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("count")
	return cmd
}
