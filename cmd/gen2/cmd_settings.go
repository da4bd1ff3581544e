package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qwennnzim-del/gen2-ai/internal/conversation"
	"github.com/qwennnzim-del/gen2-ai/internal/types"
)

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsModelCmd, settingsLangCmd)
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change chat settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current model and language",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(context.Background())
		if err != nil {
			return err
		}
		defer a.close()

		s := a.ctrl.Settings()
		fmt.Fprintf(os.Stdout, "model    = %s (%s)\nlanguage = %s\n", s.Model.Label(), s.Model, s.Language)
		return nil
	},
}

var settingsModelCmd = &cobra.Command{
	Use:   "model <pro|v3|v2|model-id>",
	Short: "Select the model",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, ok := types.ParseModel(strings.Join(args, " "))
		if !ok {
			return fmt.Errorf("%w: %s", conversation.ErrInvalidModel, strings.Join(args, " "))
		}
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.ctrl.SetModel(ctx, m); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Model set to %s\n", m.Label())
		return nil
	},
}

var settingsLangCmd = &cobra.Command{
	Use:   "lang <en|id>",
	Short: "Select the language",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.ctrl.SetLanguage(ctx, types.Language(strings.ToLower(args[0]))); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Language set to %s\n", strings.ToLower(args[0]))
		return nil
	},
}
