package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPDeps holds dependencies for the MCP server. Advisor is optional; without
// it recommend_courses is not registered.
type MCPDeps struct {
	Vectors Ingester
	Chat    ChatService
	History HistoryReader
	Advisor Recommender
	Version string
}

// NewMCPServer creates an MCP server exposing ingestion, question answering
// and history lookups as tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"ragdesk",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions("ragdesk answers questions from documents ingested per user, keeping a chat history per session."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("ingest_text",
			mcp.WithDescription("Replace a user's document index with the given text."),
			mcp.WithString("user_id", mcp.Description("Owner of the index"), mcp.Required()),
			mcp.WithString("text", mcp.Description("Document text to index"), mcp.Required()),
		),
		mcpIngestText(deps),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask a question against a user's documents. Omit session_id to start a new session."),
			mcp.WithString("user_id", mcp.Description("Owner of the index"), mcp.Required()),
			mcp.WithString("question", mcp.Description("The question"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Existing chat session id")),
		),
		mcpAsk(deps),
	)

	s.AddTool(
		mcp.NewTool("get_history",
			mcp.WithDescription("Return the stored messages of a chat session as JSON."),
			mcp.WithString("session_id", mcp.Description("Chat session id"), mcp.Required()),
		),
		mcpGetHistory(deps),
	)

	if deps.Advisor != nil {
		s.AddTool(
			mcp.NewTool("recommend_courses",
				mcp.WithDescription("Suggest three follow-up courses for a completed course and score."),
				mcp.WithString("course", mcp.Description("Completed course name"), mcp.Required()),
				mcp.WithNumber("marks", mcp.Description("Score in percent (0-100)"), mcp.Required()),
			),
			mcpRecommend(deps),
		)
	}

	return s
}

func mcpIngestText(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		path, err := deps.Vectors.Ingest(ctx, userID, []string{text})
		if err != nil {
			return mcpError(fmt.Sprintf("ingest failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Indexed documents for %s at %s", userID, path)), nil
	}
}

func mcpAsk(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		sessionID := strings.TrimSpace(req.GetString("session_id", ""))
		if sessionID == "" {
			sessionID, err = deps.Chat.NewSession(ctx, userID)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to create session: %v", err)), nil
			}
		}

		res := deps.Chat.Turn(ctx, userID, sessionID, question)
		if !res.Success {
			return mcpError(fmt.Sprintf("session %s: %s", sessionID, res.Error)), nil
		}

		b, err := json.Marshal(map[string]string{"session_id": sessionID, "answer": res.Answer})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		msgs, err := deps.History.GetMessages(ctx, sessionID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read history: %v", err)), nil
		}
		if len(msgs) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(msgs)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal messages: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecommend(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		course, err := req.RequireString("course")
		if err != nil {
			return mcpError("course is required"), nil
		}
		marks, err := req.RequireFloat("marks")
		if err != nil {
			return mcpError("marks is required"), nil
		}

		courses, err := deps.Advisor.Recommend(ctx, course, marks)
		if err != nil {
			return mcpError(fmt.Sprintf("recommendation failed: %v", err)), nil
		}
		return mcpText(strings.Join(courses, ", ")), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
