package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/version-matrix/internal/cluster"
	"github.com/giantswarm/version-matrix/internal/server"
)

func registerReleaseTools(s *mcpserver.MCPServer, sc *server.ServerContext) {
	listTool := mcp.NewTool("list_releases",
		mcp.WithDescription("List application releases currently deployed in the cluster"),
	)
	s.AddTool(listTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleListReleases(ctx, request, sc)
	})

	teardownTool := mcp.NewTool("teardown_release",
		mcp.WithDescription("Delete a deployed application release left behind by an interrupted run"),
		mcp.WithString("label",
			mcp.Required(),
			mcp.Description("Version label of the release"),
		),
	)
	s.AddTool(teardownTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleTeardownRelease(ctx, request, sc)
	})
}

func handleListReleases(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.ClusterManager == nil {
		return mcp.NewToolResultError("cluster manager is not configured"), nil
	}

	releases, err := sc.ClusterManager.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list releases: %v", err)), nil
	}
	if releases == nil {
		releases = []cluster.ReleaseStatus{}
	}
	return jsonResult(releases)
}

func handleTeardownRelease(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	if sc.ClusterManager == nil {
		return mcp.NewToolResultError("cluster manager is not configured"), nil
	}

	label, _ := request.GetArguments()["label"].(string)
	if label == "" {
		return mcp.NewToolResultError("'label' is required"), nil
	}

	if err := sc.ClusterManager.Teardown(ctx, label); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to tear down release: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Release %q deleted.", label)), nil
}
