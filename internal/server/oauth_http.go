package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	oauth "github.com/giantswarm/mcp-oauth"
	"github.com/giantswarm/mcp-oauth/providers/dex"
	oauthserver "github.com/giantswarm/mcp-oauth/server"
	"github.com/giantswarm/mcp-oauth/storage/memory"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// OAuthProviderDex is the Dex OIDC provider, the only one supported.
const OAuthProviderDex = "dex"

// OAuthConfig holds configuration for the OAuth-enabled HTTP server.
type OAuthConfig struct {
	// BaseURL is the public base URL, e.g. https://version-matrix.example.com.
	BaseURL string
	// Provider must be empty or "dex".
	Provider string

	DexIssuerURL    string
	DexClientID     string
	DexClientSecret string
}

// Validate checks that every required setting is present.
func (c OAuthConfig) Validate() error {
	if c.Provider != "" && c.Provider != OAuthProviderDex {
		return fmt.Errorf("unsupported OAuth provider %q (supported: %s)", c.Provider, OAuthProviderDex)
	}
	if err := validateHTTPSRequirement(c.BaseURL); err != nil {
		return fmt.Errorf("OAuth base URL validation failed: %w", err)
	}
	switch {
	case c.DexIssuerURL == "":
		return fmt.Errorf("dex issuer URL is required")
	case c.DexClientID == "":
		return fmt.Errorf("dex client ID is required")
	case c.DexClientSecret == "":
		return fmt.Errorf("dex client secret is required")
	}
	return nil
}

// OAuthHTTPServer wraps an MCP server with OAuth 2.1 authentication.
type OAuthHTTPServer struct {
	mcpServer    *mcpserver.MCPServer
	serverCtx    *ServerContext
	oauthServer  *oauth.Server
	oauthHandler *oauth.Handler
	httpServer   *http.Server
	mcpEndpoint  string
}

// NewOAuthHTTPServer creates a new OAuth-enabled HTTP server for MCP.
func NewOAuthHTTPServer(mcpSrv *mcpserver.MCPServer, sc *ServerContext, mcpEndpoint string, cfg OAuthConfig) (*OAuthHTTPServer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	callbackURL := cfg.BaseURL + "/oauth/callback"
	dexProvider, err := dex.NewProvider(&dex.Config{
		IssuerURL:    cfg.DexIssuerURL,
		ClientID:     cfg.DexClientID,
		ClientSecret: cfg.DexClientSecret,
		RedirectURL:  callbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Dex provider: %w", err)
	}

	// Matrix runs are single-process, so in-memory token storage suffices.
	store := memory.New()
	logger := slog.Default()

	oauthSrv, err := oauth.NewServer(
		dexProvider,
		store,
		store,
		store,
		&oauthserver.Config{
			Issuer:                    cfg.BaseURL,
			AllowRefreshTokenRotation: true,
			MaxClientsPerIP:           10,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OAuth server: %w", err)
	}

	oauthHandler := oauth.NewHandler(oauthSrv, logger)

	return &OAuthHTTPServer{
		mcpServer:    mcpSrv,
		serverCtx:    sc,
		oauthServer:  oauthSrv,
		oauthHandler: oauthHandler,
		mcpEndpoint:  mcpEndpoint,
	}, nil
}

// Start serves the OAuth endpoints and the MCP endpoint behind token
// validation until Shutdown is called.
func (s *OAuthHTTPServer) Start(addr string) error {
	mux := NewMux(s.mcpServer, s.mcpEndpoint, s.serverCtx, s.oauthHandler.ValidateToken)

	s.oauthHandler.RegisterAuthorizationServerMetadataRoutes(mux)
	s.oauthHandler.RegisterProtectedResourceMetadataRoutes(mux, s.mcpEndpoint)
	mux.HandleFunc("/oauth/authorize", s.oauthHandler.ServeAuthorization)
	mux.HandleFunc("/oauth/token", s.oauthHandler.ServeToken)
	mux.HandleFunc("/oauth/callback", s.oauthHandler.ServeCallback)
	mux.HandleFunc("/oauth/register", s.oauthHandler.ServeClientRegistration)
	mux.HandleFunc("/oauth/revoke", s.oauthHandler.ServeTokenRevocation)
	mux.HandleFunc("/oauth/introspect", s.oauthHandler.ServeTokenIntrospection)

	s.httpServer = NewHTTPServer(addr, mux)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *OAuthHTTPServer) Shutdown(ctx context.Context) error {
	if s.oauthServer != nil {
		if err := s.oauthServer.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OAuth server", "error", err)
		}
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// validateHTTPSRequirement ensures OAuth 2.1 HTTPS compliance.
// Allows HTTP only for loopback addresses (localhost, 127.0.0.1, ::1).
func validateHTTPSRequirement(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}

	if u.Scheme == "http" {
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("OAuth 2.1 requires HTTPS for production (got: %s). Use HTTPS or localhost for development", baseURL)
		}
	} else if u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (must be http for localhost or https)", u.Scheme)
	}

	return nil
}
