// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Tally board and calculator tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tally/internal/apperr"
	"github.com/starford/tally/internal/calc"
	"github.com/starford/tally/internal/engine"
	"github.com/starford/tally/internal/models"
)

const contractURI = "tally://calculator-notes"

// Board is the item store the tools operate on.
type Board interface {
	List(ctx context.Context) ([]models.Item, error)
	FetchItem(ctx context.Context, id string) (models.Item, error)
	CreateItem(ctx context.Context, item models.Item) (models.Item, error)
	UpdateItemContent(ctx context.Context, id, content string) error
	MoveItem(ctx context.Context, id string, pos models.Position) (models.Item, error)
	DeleteItem(ctx context.Context, id string) error
}

// Calculator creates and lists calculator notes.
type Calculator interface {
	CreateCalculation(ctx context.Context, op calc.Operation, itemIDs []string) (*engine.Calculation, error)
	Calculations(ctx context.Context) ([]engine.DerivedNote, error)
}

// Server wraps the MCP server with Tally tools.
type Server struct {
	mcp   *server.MCPServer
	board Board
	calc  Calculator
}

// New creates a new MCP server with all Tally tools registered.
func New(b Board, c Calculator) *Server {
	s := &Server{board: b, calc: c}

	s.mcp = server.NewMCPServer(
		"Tally",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_items",
		mcp.WithDescription("List board items as JSON."),
		mcp.WithString("type", mcp.Description("Optional item type filter (numeric-note, sticky-note)")),
	), s.listItems)

	s.mcp.AddTool(mcp.NewTool("read_item",
		mcp.WithDescription("Read a single board item as JSON."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
	), s.readItem)

	s.mcp.AddTool(mcp.NewTool("create_item",
		mcp.WithDescription("Create a board item. Numeric notes hold a single decimal number as content."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Item content, e.g. 42 or 3.5")),
		mcp.WithString("type", mcp.Description("Item type (default numeric-note)")),
		mcp.WithString("id", mcp.Description("Optional item id; generated when empty")),
		mcp.WithNumber("x", mcp.Description("Horizontal position")),
		mcp.WithNumber("y", mcp.Description("Vertical position")),
	), s.createItem)

	s.mcp.AddTool(mcp.NewTool("update_item",
		mcp.WithDescription("Replace an item's content. Calculator notes that depend on it are recomputed."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New content")),
	), s.updateItem)

	s.mcp.AddTool(mcp.NewTool("move_item",
		mcp.WithDescription("Move a board item to a new position."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("Horizontal position")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("Vertical position")),
	), s.moveItem)

	s.mcp.AddTool(mcp.NewTool("delete_item",
		mcp.WithDescription("Delete a board item."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
	), s.deleteItem)

	s.mcp.AddTool(mcp.NewTool("create_calculation",
		mcp.WithDescription("Create a calculator note holding the sum or product of at least two numeric notes. "+
			"Read the contract first via the get_calculator_contract tool or the "+contractURI+" resource."),
		mcp.WithString("operation", mcp.Required(), mcp.Description("sum or product")),
		mcp.WithArray("item_ids", mcp.Required(), mcp.WithStringItems(), mcp.Description("Ids of the source notes")),
	), s.createCalculation)

	s.mcp.AddTool(mcp.NewTool("list_calculations",
		mcp.WithDescription("List tracked calculator notes with their operation and source ids."),
	), s.listCalculations)

	s.mcp.AddTool(mcp.NewTool("get_calculator_contract",
		mcp.WithDescription("Returns how calculator notes behave. "+
			"Call this before creating calculations to understand numeric notes and recomputation."),
	), s.getCalculatorContract)

	// Resource: calculator note contract.
	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Calculator Notes Contract",
			mcp.WithResourceDescription("How numeric notes are read and calculator notes are kept up to date."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func errorResult(id string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	typ := req.GetString("type", "")
	items, err := s.board.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := make([]models.Item, 0, len(items))
	for _, it := range items {
		if typ == "" || it.Type == typ {
			out = append(out, it)
		}
	}
	return jsonResult(out), nil
}

func (s *Server) readItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	item, err := s.board.FetchItem(ctx, id)
	if err != nil {
		return errorResult(id, err), nil
	}
	return jsonResult(item), nil
}

func (s *Server) createItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	typ := req.GetString("type", models.TypeNumericNote)
	if typ != models.TypeNumericNote && typ != models.TypeStickyNote {
		return mcp.NewToolResultError(fmt.Sprintf("unknown item type: %s", typ)), nil
	}

	item, err := s.board.CreateItem(ctx, models.Item{
		ID:      req.GetString("id", ""),
		Type:    typ,
		Content: content,
		X:       req.GetFloat("x", 0),
		Y:       req.GetFloat("y", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", item.ID)), nil
}

func (s *Server) updateItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.board.UpdateItemContent(ctx, id, content); err != nil {
		return errorResult(id, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", id)), nil
}

func (s *Server) moveItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	x, err := req.RequireFloat("x")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	y, err := req.RequireFloat("y")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	item, err := s.board.MoveItem(ctx, id, models.Position{X: x, Y: y})
	if err != nil {
		return errorResult(id, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved: %s to (%g, %g)", item.ID, item.Position.X, item.Position.Y)), nil
}

func (s *Server) deleteItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.board.DeleteItem(ctx, id); err != nil {
		return errorResult(id, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) createCalculation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawOp, err := req.RequireString("operation")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	op, err := calc.ParseOperation(rawOp)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ids := req.GetStringSlice("item_ids", nil)
	if len(ids) == 0 {
		return mcp.NewToolResultError("item_ids is required"), nil
	}

	res, err := s.calc.CreateCalculation(ctx, op, ids)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res), nil
}

func (s *Server) listCalculations(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes, err := s.calc.Calculations(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(notes) == 0 {
		return mcp.NewToolResultText("no calculator notes"), nil
	}
	lines := make([]string, len(notes))
	for i, n := range notes {
		lines[i] = fmt.Sprintf("%s = %s(%s)", n.ID, n.Operation, strings.Join(n.SourceIDs, ", "))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getCalculatorContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(CalculatorContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     CalculatorContract,
		},
	}, nil
}
