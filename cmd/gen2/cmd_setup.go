package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qwennnzim-del/gen2-ai/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("Gen2 Setup")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		cfg.LLM.APIKey = prompt(scanner, "Gemini API key", cfg.LLM.APIKey)
		cfg.LLM.BaseURL = prompt(scanner, "API base URL", cfg.LLM.BaseURL)

		for {
			backend := prompt(scanner, "Storage backend (file, sqlite, memory)", cfg.Storage.Backend)
			err := config.Assign(cfg, "storage.backend", backend)
			if err == nil {
				break
			}
			fmt.Println(err)
		}

		if yes(prompt(scanner, "Enable HTTP API? (y/n)", yesNo(cfg.HTTP.Enabled))) {
			cfg.HTTP.Enabled = true
			cfg.HTTP.Listen = prompt(scanner, "HTTP listen address", cfg.HTTP.Listen)
		} else {
			cfg.HTTP.Enabled = false
		}

		cfg.Telegram.Token = prompt(scanner, "Telegram bot token (optional)", cfg.Telegram.Token)

		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		fmt.Println("Run `gen2 chat` to start chatting.")
		return nil
	},
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}

func yes(s string) bool {
	switch strings.ToLower(s) {
	case "y", "yes", "true":
		return true
	}
	return false
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}
