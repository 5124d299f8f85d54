package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/giantswarm/version-matrix/internal/cluster"
	mcptools "github.com/giantswarm/version-matrix/internal/mcp"
	"github.com/giantswarm/version-matrix/internal/server"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
)

func newServeCmd() *cobra.Command {
	var (
		transport    string
		httpAddr     string
		httpEndpoint string
		inCluster    bool
		outputDir    string
		suitesDir    string
		referenceDir string
		historyDB    string
		llmEndpoint  string
		llmAPIKey    string
		debug        bool

		enableOAuth     bool
		oauthBaseURL    string
		oauthProvider   string
		dexIssuerURL    string
		dexClientID     string
		dexClientSecret string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server to expose matrix runs, reports, triage and run history
via the Model Context Protocol.

Supports multiple transport types:
  - stdio: Standard input/output (default, for IDE integration)
  - streamable-http: HTTP with streaming support (for remote access)

When using streamable-http transport, OAuth 2.1 authentication can be enabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})))
			}

			namespace, _ := cmd.Flags().GetString("namespace")
			kubeconfig, _ := cmd.Flags().GetString("kubeconfig")

			sc := &server.ServerContext{
				Namespace:    namespace,
				OutputDir:    outputDir,
				SuitesDir:    suitesDir,
				ReferenceDir: referenceDir,
				HistoryDB:    historyDB,
				LLMClient:    newLLMClientFromFlags(llmEndpoint, llmAPIKey),
			}

			// The cluster backend and release tools need Kubernetes access;
			// everything else works without it.
			clusterManager, err := cluster.NewManager(namespace, kubeconfig, inCluster)
			if err != nil {
				slog.Warn("cluster manager not available", "error", err)
			} else {
				sc.ClusterManager = clusterManager
			}

			mcpSrv := mcpserver.NewMCPServer("version-matrix", rootCmd.Version,
				mcpserver.WithToolCapabilities(true),
			)

			if err := mcptools.RegisterTools(mcpSrv, sc); err != nil {
				return fmt.Errorf("failed to register MCP tools: %w", err)
			}

			shutdownCtx, cancel := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer cancel()

			switch transport {
			case transportStdio:
				return runStdioServer(mcpSrv)
			case transportStreamableHTTP:
				fmt.Printf("Starting version-matrix MCP server with %s transport...\n", transport)
				if enableOAuth {
					return runOAuthHTTPServer(shutdownCtx, mcpSrv, sc, httpAddr, httpEndpoint, server.OAuthConfig{
						BaseURL:         oauthBaseURL,
						Provider:        oauthProvider,
						DexIssuerURL:    envDefault(dexIssuerURL, "DEX_ISSUER_URL"),
						DexClientID:     envDefault(dexClientID, "DEX_CLIENT_ID"),
						DexClientSecret: envDefault(dexClientSecret, "DEX_CLIENT_SECRET"),
					})
				}
				return runHTTPServer(shutdownCtx, mcpSrv, sc, httpAddr, httpEndpoint)
			default:
				return fmt.Errorf("unsupported transport: %s (supported: stdio, streamable-http)", transport)
			}
		},
	}

	cmd.Flags().StringVar(&transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP server address (for streamable-http)")
	cmd.Flags().StringVar(&httpEndpoint, "http-endpoint", "/mcp", "HTTP endpoint path (for streamable-http)")
	cmd.Flags().BoolVar(&inCluster, "in-cluster", false, "Use in-cluster Kubernetes authentication")
	cmd.Flags().StringVar(&outputDir, "output-dir", "results", "Directory for run results")
	cmd.Flags().StringVar(&suitesDir, "suites-dir", "", "External test suites directory (optional)")
	cmd.Flags().StringVar(&referenceDir, "reference-dir", "", "Directory for stored reference snapshots (optional)")
	cmd.Flags().StringVar(&historyDB, "history-db", "", "SQLite database recording every run (optional)")
	cmd.Flags().StringVar(&llmEndpoint, "llm-endpoint", "", "LLM API endpoint URL for report triage")
	cmd.Flags().StringVar(&llmAPIKey, "llm-api-key", "", "LLM API key (or set OPENAI_API_KEY)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	cmd.Flags().BoolVar(&enableOAuth, "enable-oauth", false, "Enable OAuth 2.1 authentication (for HTTP transport)")
	cmd.Flags().StringVar(&oauthBaseURL, "oauth-base-url", "", "OAuth base URL (e.g. https://version-matrix.example.com)")
	cmd.Flags().StringVar(&oauthProvider, "oauth-provider", server.OAuthProviderDex, "OAuth provider: dex")
	cmd.Flags().StringVar(&dexIssuerURL, "dex-issuer-url", "", "Dex OIDC issuer URL")
	cmd.Flags().StringVar(&dexClientID, "dex-client-id", "", "Dex OAuth client ID")
	cmd.Flags().StringVar(&dexClientSecret, "dex-client-secret", "", "Dex OAuth client secret")

	return cmd
}

// envDefault returns value, or the environment variable when value is empty.
func envDefault(value, envVar string) string {
	if value != "" {
		return value
	}
	return os.Getenv(envVar)
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, addr, endpoint string) error {
	httpServer := server.NewHTTPServer(addr, server.NewMux(mcpSrv, endpoint, sc, nil))

	fmt.Printf("  HTTP endpoint: %s\n", endpoint)
	fmt.Printf("  Health: /healthz\n")
	fmt.Printf("  Status: /status\n")

	if err := server.Serve(ctx, httpServer.ListenAndServe, httpServer.Shutdown); err != nil {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	fmt.Println("HTTP server stopped")
	return nil
}

func runOAuthHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, addr, endpoint string, cfg server.OAuthConfig) error {
	oauthSrv, err := server.NewOAuthHTTPServer(mcpSrv, sc, endpoint, cfg)
	if err != nil {
		return fmt.Errorf("failed to create OAuth HTTP server: %w", err)
	}

	fmt.Printf("OAuth-enabled HTTP server starting on %s\n", addr)
	fmt.Printf("  Base URL: %s\n", cfg.BaseURL)
	fmt.Printf("  Provider: %s\n", cfg.Provider)
	fmt.Printf("  MCP endpoint: %s (requires OAuth Bearer token)\n", endpoint)
	fmt.Printf("  Health: /healthz\n")
	fmt.Printf("  OAuth endpoints:\n")
	fmt.Printf("    - Authorization Server Metadata: /.well-known/oauth-authorization-server\n")
	fmt.Printf("    - Protected Resource Metadata: /.well-known/oauth-protected-resource\n")
	fmt.Printf("    - Client Registration: /oauth/register\n")
	fmt.Printf("    - Authorization: /oauth/authorize\n")
	fmt.Printf("    - Token: /oauth/token\n")
	fmt.Printf("    - Callback: /oauth/callback\n")

	start := func() error { return oauthSrv.Start(addr) }
	if err := server.Serve(ctx, start, oauthSrv.Shutdown); err != nil {
		return fmt.Errorf("OAuth HTTP server error: %w", err)
	}
	fmt.Println("OAuth HTTP server stopped")
	return nil
}
