package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qwennnzim-del/gen2-ai/internal/attach"
	"github.com/qwennnzim-del/gen2-ai/internal/conversation"
	"github.com/qwennnzim-del/gen2-ai/internal/types"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		r := &repl{ctrl: a.ctrl, pending: attach.NewPending(), out: os.Stdout}
		return r.run(ctx, os.Stdin)
	},
}

const chatHelp = `Commands:
  /new               start a new chat
  /sessions          list saved chats
  /open <n|id>       continue a saved chat
  /attach <path...>  attach files to the next message
  /detach <n>        remove a pending attachment
  /model [m]         show or set the model (pro, v3, v2)
  /lang [en|id]      show or set the language
  /clear-history     delete all saved chats
  /help              show this help
  /quit              exit`

type repl struct {
	ctrl    *conversation.Controller
	pending *attach.Pending
	out     io.Writer
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	fmt.Fprintf(r.out, "Gen2 by Zent Technology (%s). Type /help for commands.\n", r.ctrl.Settings().Model.Label())
	for {
		r.printPending()
		fmt.Fprint(r.out, "you> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(ctx, line); quit {
				return nil
			}
			continue
		}
		r.send(ctx, line)
	}
}

func (r *repl) printPending() {
	for i, att := range r.pending.List() {
		fmt.Fprintf(r.out, "  [%d] %s (%s, %d bytes)\n", i+1, att.Source.Name,
			attach.CategoryOf(att.Source.Name, att.Source.MimeType), att.Source.Size)
	}
}

func (r *repl) send(ctx context.Context, text string) {
	atts := r.pending.List()
	if !r.ctrl.CanSend(text, atts) {
		fmt.Fprintln(r.out, "Nothing to send.")
		return
	}
	atts = r.pending.Take()
	reply, err := r.ctrl.Send(ctx, text, atts)
	if err != nil {
		if errors.Is(err, conversation.ErrBusy) {
			for _, att := range atts {
				r.pending.Add(att)
			}
		}
		fmt.Fprintln(r.out, "Error:", err)
		return
	}
	fmt.Fprintf(r.out, "\ngen2> %s\n\n", reply.Text)
}

// command runs a slash command and reports whether the REPL should exit.
func (r *repl) command(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]

	switch name {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Fprintln(r.out, chatHelp)

	case "/new":
		r.ctrl.StartNewChat()
		fmt.Fprintln(r.out, "Started a new chat.")

	case "/sessions":
		printSessions(r.out, r.ctrl.Sessions(), r.ctrl.ActiveSessionID())

	case "/open":
		if len(args) != 1 {
			fmt.Fprintln(r.out, "Usage: /open <n|id>")
			break
		}
		id, err := resolveSession(r.ctrl.Sessions(), args[0])
		if err == nil {
			err = r.ctrl.SelectSession(id)
		}
		if err != nil {
			fmt.Fprintln(r.out, "Error:", err)
			break
		}
		printTranscript(r.out, r.ctrl.Messages())

	case "/attach":
		if len(args) == 0 {
			fmt.Fprintln(r.out, "Usage: /attach <path...>")
			break
		}
		if err := r.pending.AddFiles(ctx, args...); err != nil {
			fmt.Fprintln(r.out, "Error:", err)
		}

	case "/detach":
		n, err := strconv.Atoi(strings.Join(args, ""))
		if err != nil || !r.pending.Remove(n-1) {
			fmt.Fprintln(r.out, "Usage: /detach <n>")
		}

	case "/model":
		if len(args) == 0 {
			current := r.ctrl.Settings().Model
			for _, m := range types.Models {
				marker := " "
				if m == current {
					marker = "*"
				}
				fmt.Fprintf(r.out, "%s %-12s %s\n", marker, m.Label(), m)
			}
			break
		}
		m, ok := types.ParseModel(strings.Join(args, " "))
		if !ok {
			fmt.Fprintln(r.out, "Unknown model. Try: pro, v3, v2")
			break
		}
		if err := r.ctrl.SetModel(ctx, m); err != nil {
			fmt.Fprintln(r.out, "Error:", err)
			break
		}
		fmt.Fprintln(r.out, "Model set to", m.Label())

	case "/lang":
		if len(args) == 0 {
			fmt.Fprintln(r.out, "Language:", r.ctrl.Settings().Language)
			break
		}
		if err := r.ctrl.SetLanguage(ctx, types.Language(strings.ToLower(args[0]))); err != nil {
			fmt.Fprintln(r.out, "Error:", err)
			break
		}
		fmt.Fprintln(r.out, "Language set to", args[0])

	case "/clear-history":
		r.ctrl.DeleteAllHistory(ctx)
		fmt.Fprintln(r.out, "All chat history deleted.")

	default:
		fmt.Fprintf(r.out, "Unknown command %s. Type /help.\n", name)
	}
	return false
}
