package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/qwennnzim-del/gen2-ai/internal/types"
)

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionListCmd, sessionShowCmd, sessionClearCmd)
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage saved chats",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved chats, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.close()

		printSessions(os.Stdout, a.ctrl.Sessions(), "")
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <n|id>",
	Short: "Print a saved chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.close()

		id, err := resolveSession(a.ctrl.Sessions(), args[0])
		if err != nil {
			return err
		}
		sess, _ := a.ctrl.Session(id)
		fmt.Fprintf(os.Stdout, "%s\n%s\n\n", sess.Title, sess.ID)
		printTranscript(os.Stdout, sess.Messages)
		return nil
	},
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all saved chats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		n := len(a.ctrl.Sessions())
		a.ctrl.DeleteAllHistory(ctx)
		fmt.Fprintf(os.Stdout, "Deleted %d chats.\n", n)
		return nil
	},
}

func printSessions(out io.Writer, sessions []types.ChatSession, active types.SessionID) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No saved chats.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTITLE\tMESSAGES\tUPDATED\tID")
	for i, s := range sessions {
		marker := ""
		if s.ID == active {
			marker = "*"
		}
		fmt.Fprintf(w, "%s%d\t%s\t%d\t%s\t%s\n",
			marker, i+1,
			s.Title,
			len(s.Messages),
			s.UpdatedAt.Local().Format("2006-01-02 15:04"),
			s.ID,
		)
	}
	w.Flush()
}

func printTranscript(out io.Writer, msgs []types.Message) {
	for _, m := range msgs {
		who := "you"
		if m.Role == types.RoleModel {
			who = "gen2"
		}
		fmt.Fprintf(out, "[%s] %s> %s\n", m.CreatedAt.Local().Format(time.Kitchen), who, m.Text)
		for _, att := range m.Attachments {
			fmt.Fprintf(out, "    + %s (%s)\n", att.Source.Name, att.Kind)
		}
	}
}
