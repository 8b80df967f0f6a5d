package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lunafall/companion/internal/config"
	"github.com/lunafall/companion/internal/gateway"
	"github.com/lunafall/companion/internal/session"
	"github.com/spf13/cobra"
)

// ChatOptions for running the chat command with custom dependencies
type ChatOptions struct {
	ClientFactory gateway.ClientFactory
	Stdin         io.Reader
	Stdout        io.Writer
	Stderr        io.Writer
}

var rootCmd = &cobra.Command{
	Use:   "companion",
	Short: "companion - personal AI companion gateway",
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in single message or REPL mode",
	RunE:  runChat,
}

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the full gateway (channels + maintenance cron)",
	RunE:  runGateway,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show companion status",
	RunE:  runStatus,
}

var (
	messageFlag string
	modeFlag    string
	userFlag    string
)

func init() {
	chatCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Single message to send")
	chatCmd.Flags().StringVar(&modeFlag, "mode", "", "Mode override for this turn")
	chatCmd.Flags().StringVarP(&userFlag, "user", "u", "cli", "Account id")
	rootCmd.AddCommand(chatCmd, gatewayCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	return runChatWithOptions(ChatOptions{})
}

// runChatWithOptions runs the chat command with injectable dependencies for
// testing.
func runChatWithOptions(opts ChatOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw, err := gateway.NewWithOptions(cfg, gateway.Options{ClientFactory: opts.ClientFactory})
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	defer func() { _ = gw.Shutdown() }()
	svc := gw.Service()

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	ctx := context.Background()

	// Single message mode
	if messageFlag != "" {
		result, err := svc.Chat(ctx, session.ChatRequest{
			AccountID: userFlag,
			Message:   messageFlag,
			Mode:      modeFlag,
		})
		if err != nil {
			return fmt.Errorf("chat error: %w", err)
		}
		fmt.Fprintln(stdout, result.Reply)
		return nil
	}

	// REPL mode
	fmt.Fprintln(stdout, "companion chat (type 'exit' to quit)")
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		result, err := svc.Chat(ctx, session.ChatRequest{
			AccountID: userFlag,
			Message:   input,
			Mode:      modeFlag,
		})
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			continue
		}
		fmt.Fprintln(stdout, result.Reply)
	}
	return nil
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to pick a provider (ollama is the default)\n", cfgPath)
	fmt.Println("  2. Set ASSISTANT_UNCENSORED_PASSWORD to enable the privileged mode")
	fmt.Println("  3. Run 'companion chat -m \"Hello\"' to test")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Provider: %s\n", cfg.Provider.Type)
	fmt.Printf("Model: %s\n", cfg.Provider.Model)
	if cfg.Provider.Type == "openai" {
		if key := cfg.Provider.APIKey; len(key) > 8 {
			fmt.Printf("API Key: %s...%s\n", key[:4], key[len(key)-4:])
		} else if key != "" {
			fmt.Println("API Key: set")
		} else {
			fmt.Println("API Key: not set")
		}
	} else {
		fmt.Printf("Ollama host: %s\n", cfg.Provider.OllamaHost)
	}
	fmt.Printf("Store: %s\n", cfg.Store.DBPath)
	fmt.Printf("Default character: %s\n", cfg.Assistant.DefaultCharacterID)
	fmt.Printf("Privileged mode password: %s\n", setOrNot(cfg.Gate.UncensoredSecret))
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
	fmt.Printf("API: enabled=%v port=%d\n", cfg.Channels.API.Enabled, cfg.Gateway.Port)
	fmt.Printf("Maintenance sweep: %s\n", cfg.Maintenance.SweepCron)

	return nil
}

func setOrNot(v string) string {
	if strings.TrimSpace(v) == "" {
		return "not set"
	}
	return "set"
}
