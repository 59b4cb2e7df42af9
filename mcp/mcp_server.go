package mcp

import (
	"context"
	"fmt"

	core "homefi-backend/core/project"
	storage "homefi-backend/storage/project"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes read-only ledger tools over MCP.
type MCPServer struct {
	mcpServer *server.MCPServer
	store     storage.Store
}

// NewMCPServer creates a new MCP server using the mcp-go library.
func NewMCPServer(store storage.Store) *MCPServer {
	mcpServer := server.NewMCPServer(
		"HomeFi Ledger MCP Server",
		"1.0.0",
		server.WithToolCapabilities(true),
	)

	s := &MCPServer{
		mcpServer: mcpServer,
		store:     store,
	}
	s.registerTools()
	return s
}

// GetMCPServer returns the underlying MCP server for transport setup.
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *MCPServer) registerTools() {
	s.registerListProjectsTool()
	s.registerGetProjectTool()
	s.registerListTasksTool()
	s.registerFundingStatusTool()
	s.registerListEventsTool()
}

// registerListProjectsTool creates a tool for listing projects.
func (s *MCPServer) registerListProjectsTool() {
	tool := mcp.NewTool("list_projects",
		mcp.WithDescription("List all project ledgers"),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projects, err := s.store.ListProjects(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list projects: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Found %d projects:\n\n%+v", len(projects), projects)), nil
	})
}

// registerGetProjectTool creates a tool for getting one ledger.
func (s *MCPServer) registerGetProjectTool() {
	tool := mcp.NewTool("get_project",
		mcp.WithDescription("Get a project ledger"),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("ID of project to retrieve")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, err := request.RequireString("project_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p, err := s.store.GetProject(ctx, projectID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get project: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Project ledger:\n\n%+v", p)), nil
	})
}

// registerListTasksTool creates a tool for listing a project's tasks.
func (s *MCPServer) registerListTasksTool() {
	tool := mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks in a project with their status triples"),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("ID of project")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, err := request.RequireString("project_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p, err := s.store.GetProject(ctx, projectID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get project: %v", err)), nil
		}
		type taskView struct {
			Task   core.Task       `json:"task"`
			Alerts core.TaskAlerts `json:"alerts"`
		}
		views := make([]taskView, 0, len(p.Tasks))
		for i := range p.Tasks {
			views = append(views, taskView{Task: p.Tasks[i], Alerts: p.Tasks[i].Alerts()})
		}
		return mcp.NewToolResultText(fmt.Sprintf("Found %d tasks:\n\n%+v", len(views), views)), nil
	})
}

// registerFundingStatusTool creates a tool summarizing a ledger's funding.
func (s *MCPServer) registerFundingStatusTool() {
	tool := mcp.NewTool("funding_status",
		mcp.WithDescription("Summarize lent, allocated, and remaining cost for a project"),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("ID of project")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, err := request.RequireString("project_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		p, err := s.store.GetProject(ctx, projectID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to get project: %v", err)), nil
		}
		cost := p.ProjectCost()
		result := map[string]interface{}{
			"project_cost":    cost,
			"total_lent":      p.TotalLent,
			"total_allocated": p.TotalAllocated,
			"unfunded":        cost - p.TotalLent,
			"unallocated":     p.TotalLent - p.TotalAllocated,
			"queue_length":    len(p.ChangeOrderedTasks),
		}
		return mcp.NewToolResultText(fmt.Sprintf("Funding status:\n\n%+v", result)), nil
	})
}

// registerListEventsTool creates a tool for reading the activity log.
func (s *MCPServer) registerListEventsTool() {
	tool := mcp.NewTool("list_events",
		mcp.WithDescription("List recent ledger events for a project"),
		mcp.WithString("project_id", mcp.Required(), mcp.Description("ID of project")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of events to return")),
	)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID, err := request.RequireString("project_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		limit := 0
		args := request.GetArguments()
		if raw, ok := args["limit"].(float64); ok && raw > 0 {
			limit = int(raw)
		}
		events, err := s.store.ListEvents(ctx, projectID, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list events: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Found %d events:\n\n%+v", len(events), events)), nil
	})
}
