// Package mcpserver exposes the load plan over the Model Context Protocol
// so host agents can inspect it and pull extra reference docs mid-session
// without shelling out to the CLI.
package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/pkg/errors"

	"github.com/loadout-sh/loadout/pkg/catalog"
	"github.com/loadout-sh/loadout/pkg/install"
	"github.com/loadout-sh/loadout/pkg/logger"
	"github.com/loadout-sh/loadout/pkg/session"
)

// Config holds everything the MCP server needs. All fields are required.
type Config struct {
	Name      string
	Version   string
	Catalog   *catalog.Catalog
	Sessions  *session.Store
	Installer *install.Installer
}

// Server wraps the MCP SDK server around the catalog, session store, and
// installer.
type Server struct {
	mcpServer *mcp.Server
	catalog   *catalog.Catalog
	sessions  *session.Store
	installer *install.Installer
	name      string
	version   string
}

// NewServer validates the config, creates the underlying SDK server, and
// registers the loadout tools.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, errors.New("server name is required")
	}
	if cfg.Version == "" {
		return nil, errors.New("server version is required")
	}
	if cfg.Catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Installer == nil {
		return nil, errors.New("installer is required")
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		catalog:   cfg.Catalog,
		sessions:  cfg.Sessions,
		installer: cfg.Installer,
		name:      cfg.Name,
		version:   cfg.Version,
	}

	if err := s.registerTools(); err != nil {
		return nil, errors.Wrap(err, "registering tools")
	}
	return s, nil
}

// Run serves MCP on the given transport. It blocks until the transport
// closes or the context is canceled.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	logger.G(ctx).WithField("server", s.name).WithField("version", s.version).Info("starting MCP server")
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) registerTools() error {
	if err := s.registerStatus(); err != nil {
		return err
	}
	if err := s.registerListDocs(); err != nil {
		return err
	}
	return s.registerRequestDocs()
}
