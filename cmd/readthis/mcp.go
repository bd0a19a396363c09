package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/avelis/readthis/internal/remote"
	"github.com/avelis/readthis/internal/target"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP capture surface (stdio)",
	Long: `Run an MCP server over stdio exposing readthis as tools, so agents
can save links, mark them read, and page through the collection. Captures go
through the same local intent queue as every other surface.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.close()

		s := newMCPServer(e)
		stdio := server.NewStdioServer(s)
		if err := stdio.Listen(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout()); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func newMCPServer(e *engine) *server.MCPServer {
	s := server.NewMCPServer(
		"readthis",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("readthis — save links for later and mark them read; captures are queued locally and synced to the remote collection."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("save_link",
			mcp.WithDescription("Save a link to read later."),
			mcp.WithString("url", mcp.Description("The http(s) URL to save"), mcp.Required()),
		),
		mcpCapture(e, remote.StatusUnread),
	)

	s.AddTool(
		mcp.NewTool("mark_read",
			mcp.WithDescription("Mark a previously saved link as read."),
			mcp.WithString("url", mcp.Description("The http(s) URL to mark read"), mcp.Required()),
		),
		mcpCapture(e, remote.StatusRead),
	)

	s.AddTool(
		mcp.NewTool("list_links",
			mcp.WithDescription("List links from the remote collection, newest first."),
			mcp.WithString("status", mcp.Description("Filter: unread, read, or all (default unread)")),
			mcp.WithString("cursor", mcp.Description("Cursor from a previous page to continue from")),
			mcp.WithNumber("limit", mcp.Description("Page size (default 25)")),
		),
		mcpListLinks(e),
	)

	return s
}

func mcpCapture(e *engine, desired remote.Status) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("url")
		if err != nil {
			return mcpError("url is required"), nil
		}

		targetURL, ok := target.Normalize(raw)
		if !ok {
			return mcpError(fmt.Sprintf("not an http(s) URL: %q", raw)), nil
		}

		if _, err := e.queue.Enqueue(targetURL, desired, "mcp"); err != nil {
			return mcpError(fmt.Sprintf("recording intent: %v", err)), nil
		}

		applied := false
		if e.remote {
			res := e.rec.DrainTarget(ctx, e.queue, targetURL, quickSyncBudget)
			applied = len(res.Applied) == 1
		}
		notifyDaemon(e.cfg, "links")

		state := "queued for sync"
		if applied {
			state = "synced"
		}
		return mcpText(fmt.Sprintf("Recorded %s as %s (%s)", targetURL, desired, state)), nil
	}
}

func mcpListLinks(e *engine) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := e.requireRemote(); err != nil {
			return mcpError(err.Error()), nil
		}

		var status remote.Status
		if s := req.GetString("status", "unread"); s != "all" {
			status = remote.Status(s)
			if !status.Valid() {
				return mcpError(fmt.Sprintf("unknown status %q", s)), nil
			}
		}

		pager := *e.pager
		if limit := req.GetInt("limit", 0); limit > 0 {
			pager.Limit = limit
		}

		pg, err := pager.Fetch(ctx, status, req.GetString("cursor", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("fetching page: %v", err)), nil
		}

		data, err := json.MarshalIndent(pg, "", "  ")
		if err != nil {
			return mcpError(fmt.Sprintf("encoding page: %v", err)), nil
		}
		return mcpText(string(data)), nil
	}
}

func mcpText(msg string) *mcp.CallToolResult {
	return mcp.NewToolResultText(msg)
}

func mcpError(msg string) *mcp.CallToolResult {
	return mcp.NewToolResultError(msg)
}
