package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/m4xw311/trialdesk/agents"
	"github.com/m4xw311/trialdesk/config"
	"github.com/m4xw311/trialdesk/coordinator"
	"github.com/m4xw311/trialdesk/coordinator/rpc"
	"github.com/m4xw311/trialdesk/coordinator/terminal"
	"github.com/m4xw311/trialdesk/ledger"
	"github.com/m4xw311/trialdesk/llm"
	"github.com/m4xw311/trialdesk/promptstore"
	"github.com/m4xw311/trialdesk/session"
	"github.com/m4xw311/trialdesk/tools"
	"github.com/m4xw311/trialdesk/tools/mcp"
	"github.com/m4xw311/trialdesk/workspace"
)

func main() {
	projectFlag := flag.String("p", "default", "Project to open or create")
	listFlag := flag.Bool("list", false, "List projects and exit")
	deleteFlag := flag.String("delete", "", "Delete the named project and its workspace, then exit")
	rpcFlag := flag.Bool("rpc", false, "Serve JSON-RPC on stdio instead of the interactive terminal")
	traceFlag := flag.Bool("trace", false, "Write a protocol trace file in RPC mode")
	flag.Parse()

	// API keys commonly live in a .env next to the working directory.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}
	for _, problem := range cfg.Validate() {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", problem)
	}

	logger := setupLogger(cfg)

	store, err := ledger.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ledger: %+v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	workspaces := workspace.NewManager(cfg.WorkspacesDir)

	if *listFlag {
		listProjects(store)
		return
	}
	if *deleteFlag != "" {
		if err := deleteProject(store, workspaces, *deleteFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Error deleting project '%s': %+v\n", *deleteFlag, err)
			os.Exit(1)
		}
		fmt.Printf("Deleted project %s\n", *deleteFlag)
		return
	}

	project, err := openProject(store, workspaces, *projectFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening project '%s': %+v\n", *projectFlag, err)
		os.Exit(1)
	}

	prompts, err := promptstore.Open(cfg.AppDataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening prompt store: %+v\n", err)
		os.Exit(1)
	}

	transcript, err := session.Load(cfg.AppDataDir, project.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading transcript: %+v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	client, err := llm.New(ctx, cfg.LLMClient, cfg.Model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing LLM client: %+v\n", err)
		os.Exit(1)
	}

	provisioner := mcp.NewProvisioner(cfg, mcp.DetectCapabilities(cfg.BraveAPIKey))
	defer provisioner.Reset()

	orchestrator := agents.NewOrchestrator(client, project.WorkspacePath, prompts, logger)

	opts := coordinator.Options{
		Store:       store,
		Provisioner: provisioner,
		Agent:       orchestrator,
		Project:     project,
		// Local workspace tools keep the document workflows alive when
		// the external servers cannot start.
		FallbackTools: tools.FilesystemTools(project.WorkspacePath, &cfg.FilesystemAccess),
		Transcript:    transcript,
		Logger:        logger,
	}

	if *rpcFlag {
		// RPC mode owns stdout; everything human-readable stays off it.
		server := rpc.New(bufio.NewReader(os.Stdin), bufio.NewWriter(os.Stdout), workspaces, project.Name)
		opts.Notifier = server
		coord := coordinator.New(opts)
		server.Bind(coord)
		err = server.Run(ctx, *traceFlag)
		coord.Stop()
		coord.Wait()
		if err != nil {
			fmt.Fprintf(os.Stderr, "RPC mode failed: %+v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("TrialDesk is ready. Project: %s\n", project.Name)
	term := terminal.New(workspaces, project.Name)
	opts.Notifier = term
	coord := coordinator.New(opts)
	term.Bind(coord)
	if err := term.Run(strings.Join(flag.Args(), " ")); err != nil {
		fmt.Fprintf(os.Stderr, "Terminal stopped with an error: %+v\n", err)
		os.Exit(1)
	}
}

// setupLogger routes structured logs to the configured file, or stderr.
// Stdout is never used: the terminal renders chat there and RPC mode
// reserves it for JSON-RPC.
func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := os.Stderr
	if cfg.LogFile != "" {
		if f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			out = f
		} else {
			fmt.Fprintf(os.Stderr, "Warning: could not open log file %s: %v\n", cfg.LogFile, err)
		}
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// openProject finds the named project or creates it along with its
// workspace directory.
func openProject(store *ledger.Store, workspaces *workspace.Manager, name string) (*ledger.Project, error) {
	project, err := store.ProjectByName(name)
	if err != nil {
		return nil, err
	}
	if project != nil {
		return project, nil
	}

	path, err := workspaces.Create(name)
	if err != nil {
		return nil, err
	}
	return store.CreateProject(name, path)
}

// deleteProject removes the ledger record (runs and approvals cascade)
// and the workspace directory.
func deleteProject(store *ledger.Store, workspaces *workspace.Manager, name string) error {
	project, err := store.ProjectByName(name)
	if err != nil {
		return err
	}
	if project == nil {
		return fmt.Errorf("no project named '%s'", name)
	}
	if err := store.DeleteProject(project.ID); err != nil {
		return err
	}
	return workspaces.Delete(name)
}

func listProjects(store *ledger.Store) {
	projects, err := store.Projects()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing projects: %+v\n", err)
		os.Exit(1)
	}
	if len(projects) == 0 {
		fmt.Println("No projects yet.")
		return
	}
	for _, p := range projects {
		fmt.Printf("%s\t%s\t%s\n", p.Name, p.CreatedAt.Format("2006-01-02"), p.WorkspacePath)
	}
}
