package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qwennnzim-del/gen2-ai/internal/attach"
)

var (
	sendAttach  []string
	sendSession string
)

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringSliceVarP(&sendAttach, "attach", "a", nil, "file to attach (repeatable)")
	sendCmd.Flags().StringVarP(&sendSession, "session", "s", "", "continue a saved chat (index or ID)")
}

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send one message and print the reply",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if sendSession != "" {
			id, err := resolveSession(a.ctrl.Sessions(), sendSession)
			if err != nil {
				return err
			}
			if err := a.ctrl.SelectSession(id); err != nil {
				return err
			}
		}

		pending := attach.NewPending()
		if err := pending.AddFiles(ctx, sendAttach...); err != nil {
			return fmt.Errorf("attach files: %w", err)
		}

		reply, err := a.ctrl.Send(ctx, strings.Join(args, " "), pending.Take())
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, reply.Text)
		return nil
	},
}
