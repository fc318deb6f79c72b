package mcp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dotcommander/newsagent/internal/config"
)

// Version is reported to toolsets during the handshake.
var Version = "dev"

// Dialer creates and starts a client for a toolset. env is the environment
// built by Service.Env. The connection is bound to ctx, which lives as long
// as the session; the handshake happens afterwards under its own timeout.
type Dialer func(ctx context.Context, name string, server config.MCPServerConfig, env []string) (*client.Client, error)

func dial(ctx context.Context, name string, desc config.MCPServerConfig, env []string) (*client.Client, error) {
	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	var cli *client.Client
	var err error
	switch desc.Transport() {
	case config.TransportSSE:
		cli, err = client.NewSSEMCPClient(desc.URL, transport.WithHTTPClient(httpClient))
	case config.TransportHTTP:
		cli, err = client.NewStreamableHttpClient(desc.URL, transport.WithHTTPBasicClient(httpClient))
	case config.TransportStdio:
		cli, err = client.NewStdioMCPClient(desc.Command, env, desc.Args...)
	case config.TransportBuiltin:
		var srv *server.MCPServer
		srv, err = newBuiltin(desc, env)
		if err == nil {
			cli, err = client.NewInProcessClient(srv)
		}
	default:
		err = fmt.Errorf("unsupported toolset type %q", desc.Type)
	}
	if err != nil {
		return nil, err
	}
	if err := cli.Start(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	return cli, nil
}

// Initialize performs the MCP handshake on a started client.
func Initialize(ctx context.Context, cli *client.Client) error {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    "newsagent",
		Version: Version,
	}
	if _, err := cli.Initialize(ctx, req); err != nil {
		return err //nolint:wrapcheck
	}
	return nil
}
