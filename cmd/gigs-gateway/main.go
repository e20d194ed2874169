// ABOUTME: Entry point for the gigs-gateway server
// ABOUTME: Serves the job marketplace operations and mints operator tokens

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/gigs-gateway/internal/auth"
	"github.com/2389/gigs-gateway/internal/config"
	"github.com/2389/gigs-gateway/internal/gateway"
)

// Version is set at build time.
var version = "dev"

const banner = `
       _                                 _
  __ _(_) __ _ ___        __ _  __ _| |_ _____      ____ _ _   _
 / _' | |/ _' / __|_____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| (_| | | (_| \__ \_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \__, |_|\__, |___/      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
 |___/   |___/           |___/                             |___/
`

func usage() {
	fmt.Println("Usage: gigs-gateway <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve          Start the gateway server")
	fmt.Println("  admin-token    Mint an operator token for the admin API")
	fmt.Println("  health         Check gateway health")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --config PATH  Config file (default: $GIGS_CONFIG or ~/.config/gigs/gateway.yaml)")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "admin-token":
		err = runAdminToken(os.Args[2:])
	case "health":
		err = runHealth(ctx, os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil && !errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newFlagSet returns a flag set carrying the shared --config flag.
func newFlagSet(name string, configPath *string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringVarP(configPath, "config", "c", config.DefaultPath(), "path to the config file (.yaml or .toml)")
	return fs
}

func runServe(ctx context.Context, args []string) error {
	var configPath string
	fs := newFlagSet("serve", &configPath)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Listen:    %s\n", cfg.Server.Addr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	if cfg.Cache.Enabled() {
		green.Print("    ▶ ")
		fmt.Printf("Cache:     ")
		cyan.Print(cfg.Cache.RedisAddr)
		gray.Printf(" (ttl %s)\n", cfg.Cache.TTL)
	}
	if cfg.Auth.AdminSecret == "" {
		yellow.Print("    ! ")
		fmt.Println("Admin API disabled (auth.admin_secret unset)")
	}
	if cfg.Auth.MaxTokenAge > 0 {
		green.Print("    ▶ ")
		fmt.Printf("Token age: %s\n", cfg.Auth.MaxTokenAge)
	}
	fmt.Println()

	logger.Info("starting gigs-gateway",
		"config", configPath,
		"addr", cfg.Server.Addr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runAdminToken(args []string) error {
	var (
		configPath string
		operator   string
		role       string
		ttl        time.Duration
	)
	fs := newFlagSet("admin-token", &configPath)
	fs.StringVar(&operator, "operator", "", "operator name recorded in the token (required)")
	fs.StringVar(&role, "role", auth.RoleAdmin, "role claim")
	fs.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(operator) == "" {
		return fmt.Errorf("--operator is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.AdminSecret == "" {
		return fmt.Errorf("auth.admin_secret is not set in %s", configPath)
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.AdminSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	tok, err := verifier.Generate(operator, role, ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(tok)
	return nil
}

func runHealth(ctx context.Context, args []string) error {
	var configPath string
	fs := newFlagSet("health", &configPath)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.Addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}
