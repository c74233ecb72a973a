package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"inferhost/internal/session"
)

func newEvalCmd(a *app) *cobra.Command {
	var system, assistant string
	cmd := &cobra.Command{
		Use:   "eval [flags] <user prompt>",
		Short: "Run one prompt through the text session and print the filtered response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.loadCore()
			if err != nil {
				return err
			}
			defer reg.UnloadCore()

			ctx := ctxOf(cmd)
			ts, err := reg.TextSession(ctx)
			if err != nil {
				return err
			}
			ch, err := ts.EvaluateStream(ctx, session.Prompt{
				System:    system,
				User:      strings.Join(args, " "),
				Assistant: assistant,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for c := range ch {
				if c.Done {
					fmt.Fprintln(out)
					a.log.Debug().Str("event", "eval_done").Str("state", c.State.String()).Msg("eval")
					continue
				}
				fmt.Fprint(out, c.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&system, "system", "", "System prompt")
	cmd.Flags().StringVar(&assistant, "assistant", "", "Assistant prompt")
	return cmd
}
