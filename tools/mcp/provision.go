package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/m4xw311/trialdesk/config"
	"github.com/m4xw311/trialdesk/errors"
	"github.com/m4xw311/trialdesk/tools"
	"golang.org/x/sync/errgroup"
)

// startupTimeout bounds each server's startup, connect and tool discovery.
const startupTimeout = 30 * time.Second

// Capabilities describes what the host environment can support. It is
// detected once at startup and passed to every provisioning call.
type Capabilities struct {
	// LauncherPath is the resolved path of the npx launcher, empty when
	// Node.js is not installed. Without it no stdio server can start.
	LauncherPath string
	// BraveAPIKey enables the web-search server when non-empty.
	BraveAPIKey string
}

// DetectCapabilities probes the environment for the tool-server launcher
// and the web-search credential.
func DetectCapabilities(braveAPIKey string) Capabilities {
	caps := Capabilities{BraveAPIKey: braveAPIKey}
	if path, err := exec.LookPath("npx"); err == nil {
		caps.LauncherPath = path
	}
	return caps
}

// Toolsets is the bundle of provisioned tool servers for one agent run
// scope. A nil or empty Toolsets is valid and means "run without tools".
type Toolsets struct {
	mu      sync.Mutex
	clients []*MCPClient
	tools   []tools.Tool
}

// Tools returns the provisioned tools. Safe to call on a nil receiver.
func (t *Toolsets) Tools() []tools.Tool {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]tools.Tool(nil), t.tools...)
}

// Reset closes every server and discards the set wholesale. The next
// Provision call builds a fresh set. Safe to call on a nil receiver.
func (t *Toolsets) Reset() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.clients {
		if err := c.Stop(); err != nil {
			slog.Warn("error stopping mcp server", "server", c.Name, "error", err)
		}
	}
	t.clients = nil
	t.tools = nil
}

// Provisioner builds and caches the Toolsets for a workspace. Servers are
// started at most once; Reset() on the returned set forces a rebuild.
type Provisioner struct {
	cfg  *config.Config
	caps Capabilities

	mu      sync.Mutex
	current *Toolsets
	forPath string
}

func NewProvisioner(cfg *config.Config, caps Capabilities) *Provisioner {
	return &Provisioner{cfg: cfg, caps: caps}
}

// Provision returns the tools for the given workspace, starting the
// servers on first use. The filesystem server is mandatory: if it cannot
// be started the whole provisioning fails with a provisioning-classified
// error and nothing is cached. The web-search server is optional and its
// failure only degrades the set. The email server is an extension point
// and is always absent in the current scope.
func (p *Provisioner) Provision(ctx context.Context, workspacePath string) ([]tools.Tool, error) {
	set, err := p.provision(ctx, workspacePath)
	if err != nil {
		return nil, err
	}
	return set.Tools(), nil
}

func (p *Provisioner) provision(ctx context.Context, workspacePath string) (*Toolsets, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil && p.forPath == workspacePath {
		return p.current, nil
	}
	if p.current != nil {
		p.current.Reset()
		p.current = nil
	}

	if p.caps.LauncherPath == "" {
		return nil, errors.Provisioning(errors.New("tool server launcher (npx) not found on PATH"))
	}

	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	set := &Toolsets{}
	var fsClient, searchClient *MCPClient

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		client, err := NewMCPClient(gctx, "filesystem", p.caps.LauncherPath,
			[]string{"-y", "@modelcontextprotocol/server-filesystem", workspacePath}, nil)
		if err != nil {
			return err
		}
		fsClient = client
		return nil
	})
	if p.caps.BraveAPIKey != "" {
		g.Go(func() error {
			env := append(os.Environ(), fmt.Sprintf("BRAVE_API_KEY=%s", p.caps.BraveAPIKey))
			client, err := NewMCPClient(gctx, "web_search", p.caps.LauncherPath,
				[]string{"-y", "@modelcontextprotocol/server-brave-search"}, env)
			if err != nil {
				// Optional server: degrade to running without web search.
				slog.Warn("web search server unavailable", "error", err)
				return nil
			}
			searchClient = client
			return nil
		})
	}
	for _, extra := range p.cfg.MCPServers {
		extra := extra
		g.Go(func() error {
			client, err := NewMCPClient(gctx, extra.Name, extra.Command, extra.Args, nil)
			if err != nil {
				slog.Warn("configured mcp server unavailable", "server", extra.Name, "error", err)
				return nil
			}
			set.mu.Lock()
			set.clients = append(set.clients, client)
			set.tools = append(set.tools, client.Tools()...)
			set.mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		set.Reset()
		if searchClient != nil {
			searchClient.Stop()
		}
		if ctx.Err() != nil {
			return nil, errors.Provisioning(errors.Wrapf(err, "timed out waiting for tool server startup"))
		}
		return nil, errors.Provisioning(err)
	}

	set.mu.Lock()
	set.clients = append(set.clients, fsClient)
	set.tools = append(set.tools, fsClient.Tools()...)
	if searchClient != nil {
		set.clients = append(set.clients, searchClient)
		set.tools = append(set.tools, searchClient.Tools()...)
	}
	set.mu.Unlock()

	p.current = set
	p.forPath = workspacePath
	return set, nil
}

// Reset discards the cached toolsets so the next Provision starts fresh.
func (p *Provisioner) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.Reset()
		p.current = nil
		p.forPath = ""
	}
}
