package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentmart/agentmart/internal/auth"
	"github.com/agentmart/agentmart/internal/bootstrap"
	"github.com/agentmart/agentmart/internal/catalog"
	"github.com/agentmart/agentmart/internal/config"
	"github.com/agentmart/agentmart/internal/marketplace"
	storepostgres "github.com/agentmart/agentmart/internal/store/postgres"
	storesqlite "github.com/agentmart/agentmart/internal/store/sqlite"
	"github.com/agentmart/agentmart/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "init":
		if err := runInit(args); err != nil {
			log.Fatalf("agentmart init failed: %v", err)
		}
		fmt.Println("marketplace config initialised")
	case "seed":
		run(args, runSeed)
	case "create-user":
		run(args, runCreateUser)
	case "topup":
		run(args, runTopup)
	case "balance":
		run(args, runBalance)
	case "agents":
		run(args, runAgents)
	case "history":
		run(args, runHistory)
	case "version":
		fmt.Println(version.FullInfo())
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Print(`AgentMart operator CLI

Usage:
  agentmart init [flags]          Generate config/setting.ini and environment overrides
  agentmart seed [flags]          Load the agent catalog from config/catalog.yaml
  agentmart create-user [flags]   Register a marketplace account
  agentmart topup [flags]         Credit tokens to a user's balance
  agentmart balance [flags]       Show a user's token balance
  agentmart agents                List catalog entries
  agentmart history [flags]       Show a user's recent invocations
  agentmart version               Print build information
`)
}

type cliEnv struct {
	cfg    config.MarketConfig
	store  marketplace.Store
	logger *log.Logger
}

// run wires config, logging and the store for a subcommand.
func run(args []string, fn func(ctx context.Context, env cliEnv, args []string) error) {
	cfg, err := config.LoadMarketConfig(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	logOutput := io.Writer(os.Stdout)
	if cfg.LogFileCLI != "" && cfg.LogFileCLI != "-" {
		logPath := cfg.LogFileCLI
		if !filepath.IsAbs(logPath) {
			logPath = filepath.Join(".", logPath)
		}
		if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
			log.Fatalf("create log directory: %v", err)
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("open log file: %v", err)
		}
		defer file.Close()
		logOutput = io.MultiWriter(os.Stdout, file)
	}
	logger := log.New(logOutput, fmt.Sprintf("[agentmart/cli][%s] ", cfg.Environment), log.LstdFlags|log.Lmicroseconds)

	store, err := openStore(cfg)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer store.Close()

	if err := fn(context.Background(), cliEnv{cfg: cfg, store: store, logger: logger}, args); err != nil {
		logger.Fatalf("%v", err)
	}
}

func openStore(cfg config.MarketConfig) (marketplace.Store, error) {
	if cfg.UsesPostgres() {
		return storepostgres.New(cfg.DatabaseURL, cfg.DBMaxOpen, cfg.DBMaxIdle, cfg.DBConnLifetime, cfg.DBConnIdleTime)
	}
	return storesqlite.New(cfg.DatabaseURL)
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	root := fs.String("root", ".", "output directory")
	env := fs.String("env", "dev", "environment name")
	httpAddr := fs.String("http-address", ":8080", "daemon HTTP bind address")
	dbURL := fs.String("database-url", "", "postgres DSN or sqlite path")
	secret := fs.String("auth-secret", "", "session signing secret")
	model := fs.String("model", "", "completion model for stock agents")
	catalogToo := fs.Bool("catalog", true, "also write config/catalog.yaml")
	force := fs.Bool("force", false, "overwrite existing files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	opts := bootstrap.InitOptions{
		Root:         *root,
		Environment:  *env,
		HTTPAddress:  *httpAddr,
		DatabaseURL:  *dbURL,
		AuthSecret:   *secret,
		Model:        *model,
		WriteCatalog: *catalogToo,
		Force:        *force,
	}
	if err := bootstrap.Validate(opts); err != nil {
		return err
	}
	return bootstrap.Init(opts)
}

// runSeed ensures the catalog developer account exists and publishes every
// catalog agent that is not already in the store. Idempotent.
func runSeed(ctx context.Context, env cliEnv, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	path := fs.String("catalog", env.cfg.CatalogPath, "catalog seed file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cat, err := catalog.Load(*path)
	if err != nil {
		return err
	}

	dev, err := env.store.FindUserByUsername(ctx, cat.Developer.Username)
	if err != nil {
		return err
	}
	if dev == nil {
		hash, err := auth.HashPassword(cat.Developer.Password)
		if err != nil {
			return err
		}
		dev, err = env.store.CreateUser(ctx, marketplace.CreateUserParams{
			Username:     cat.Developer.Username,
			Email:        cat.Developer.Email,
			PasswordHash: hash,
			Developer:    true,
		})
		if err != nil {
			return err
		}
		env.logger.Printf("created developer account id=%d username=%s", dev.ID, dev.Username)
	} else if !dev.Developer {
		return fmt.Errorf("user %q exists but is not a developer account", dev.Username)
	}

	existing, err := env.store.ListAgentsByDeveloper(ctx, dev.ID)
	if err != nil {
		return err
	}
	published := make(map[marketplace.AgentType]bool, len(existing))
	for _, a := range existing {
		published[a.Type] = true
	}

	var created int
	for _, seed := range cat.Agents {
		agentType := marketplace.AgentType(seed.Type)
		if published[agentType] {
			continue
		}
		agent, err := env.store.CreateAgent(ctx, marketplace.CreateAgentParams{
			Name:          seed.Name,
			Description:   seed.Description,
			Type:          agentType,
			DeveloperID:   dev.ID,
			PricePerToken: seed.PricePerToken,
		})
		if err != nil {
			return fmt.Errorf("publish %s: %w", seed.Name, err)
		}
		env.logger.Printf("published agent id=%d type=%s price=%g", agent.ID, agent.Type, agent.PricePerToken)
		created++
	}
	env.logger.Printf("seed complete: %d published, %d already present", created, len(cat.Agents)-created)
	return nil
}

func runCreateUser(ctx context.Context, env cliEnv, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	username := fs.String("username", "", "account username")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	developer := fs.Bool("developer", false, "create a developer account")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*username) == "" || strings.TrimSpace(*password) == "" {
		return fmt.Errorf("--username and --password are required")
	}
	hash, err := auth.HashPassword(*password)
	if err != nil {
		return err
	}
	user, err := env.store.CreateUser(ctx, marketplace.CreateUserParams{
		Username:     strings.TrimSpace(*username),
		Email:        strings.TrimSpace(strings.ToLower(*email)),
		PasswordHash: hash,
		Developer:    *developer,
	})
	if err != nil {
		return err
	}
	env.logger.Printf("created user id=%d username=%s developer=%v", user.ID, user.Username, user.Developer)
	return nil
}

func runTopup(ctx context.Context, env cliEnv, args []string) error {
	fs := flag.NewFlagSet("topup", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	username := fs.String("username", "", "account username")
	tokens := fs.Int64("tokens", 0, "tokens to credit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	user, err := requireUser(ctx, env, *username)
	if err != nil {
		return err
	}
	if *tokens <= 0 {
		return fmt.Errorf("--tokens must be positive")
	}
	balance, err := env.store.CreditBalance(ctx, user.ID, *tokens)
	if err != nil {
		return err
	}
	env.logger.Printf("credited %d tokens to %s, balance now %d", *tokens, user.Username, balance)
	return nil
}

func runBalance(ctx context.Context, env cliEnv, args []string) error {
	fs := flag.NewFlagSet("balance", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	username := fs.String("username", "", "account username")
	if err := fs.Parse(args); err != nil {
		return err
	}
	user, err := requireUser(ctx, env, *username)
	if err != nil {
		return err
	}
	fmt.Printf("user=%s balance=%d\n", user.Username, user.TokenBalance)

	purchases, err := env.store.ListPurchases(ctx, user.ID)
	if err != nil {
		return err
	}
	for _, p := range purchases {
		fmt.Printf("purchase id=%d agent=%d remaining=%d/%d\n", p.ID, p.AgentID, p.TokensRemaining, p.TokensPurchased)
	}
	return nil
}

func runAgents(ctx context.Context, env cliEnv, args []string) error {
	agents, err := env.store.ListAgents(ctx, false)
	if err != nil {
		return err
	}
	for _, a := range agents {
		state := "active"
		if !a.Active {
			state = "inactive"
		}
		fmt.Printf("id=%d type=%s name=%q price=%g %s\n", a.ID, a.Type, a.Name, a.PricePerToken, state)
	}
	return nil
}

func runHistory(ctx context.Context, env cliEnv, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	username := fs.String("username", "", "account username")
	limit := fs.Int("limit", 20, "max invocations to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	user, err := requireUser(ctx, env, *username)
	if err != nil {
		return err
	}
	invocations, err := env.store.ListInvocations(ctx, user.ID, *limit)
	if err != nil {
		return err
	}
	for _, inv := range invocations {
		line := fmt.Sprintf("%s agent=%d status=%s tokens=%d cost=%d", inv.CreatedAt.Format("2006-01-02 15:04:05"), inv.AgentID, inv.Status, inv.TokensUsed, inv.Cost)
		if inv.Error != "" {
			line += " error=" + inv.Error
		}
		fmt.Println(line)
	}
	return nil
}

func requireUser(ctx context.Context, env cliEnv, username string) (*marketplace.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("--username is required")
	}
	user, err := env.store.FindUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %q not found", username)
	}
	return user, nil
}
