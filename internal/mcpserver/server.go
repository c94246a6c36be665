// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes TERA map tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tera/internal/guard"
	"github.com/starford/tera/internal/imagedata"
	"github.com/starford/tera/internal/mapservice"
	"github.com/starford/tera/internal/models"
)

const formatURI = "tera://map-format"

// Server wraps the MCP server with TERA tools.
type Server struct {
	mcp  *server.MCPServer
	sess *mapservice.Session
	// fetch downloads remote images; replaced in tests.
	fetch func(ctx context.Context, rawURL string) ([]byte, error)
}

// New creates a new MCP server with all TERA tools registered.
func New(sess *mapservice.Session) *Server {
	s := &Server{sess: sess, fetch: fetchHTTP}

	s.mcp = server.NewMCPServer(
		"TERA",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_map",
		mcp.WithDescription("Return the active map document with its revision."),
	), s.getMap)

	s.mcp.AddTool(mcp.NewTool("list_functions",
		mcp.WithDescription("List the twelve taxonomy functions and the four groups used in 4-sector mode."),
	), s.listFunctions)

	s.mcp.AddTool(mcp.NewTool("set_sector_image",
		mcp.WithDescription("Set the image of one sector. The image is a base64 data URI "+
			"or an http(s) URL that is downloaded and stored inline. "+
			"Read the map format via get_map_format or the "+formatURI+" resource first."),
		mcp.WithNumber("function_id", mcp.Required(), mcp.Description("Function id, 1..12")),
		mcp.WithString("image", mcp.Required(), mcp.Description("data:image/...;base64,... or http(s) URL")),
		mcp.WithString("revision", mcp.Description("Optional revision for optimistic concurrency")),
	), s.setSectorImage)

	s.mcp.AddTool(mcp.NewTool("delete_sector_image",
		mcp.WithDescription("Remove the image of one sector. Removing an absent image is a no-op."),
		mcp.WithNumber("function_id", mcp.Required(), mcp.Description("Function id, 1..12")),
		mcp.WithString("revision", mcp.Description("Optional revision for optimistic concurrency")),
	), s.deleteSectorImage)

	s.mcp.AddTool(mcp.NewTool("export_sector_images",
		mcp.WithDescription("Export all sector images as a tera-sector-images file."),
	), s.exportSectorImages)

	s.mcp.AddTool(mcp.NewTool("import_sector_images",
		mcp.WithDescription("Replace all sector images with the content of a tera-sector-images file."),
		mcp.WithString("content", mcp.Required(), mcp.Description("JSON exchange file content")),
		mcp.WithString("revision", mcp.Description("Optional revision for optimistic concurrency")),
	), s.importSectorImages)

	s.mcp.AddTool(mcp.NewTool("add_node",
		mcp.WithDescription("Add a node to the map. Ranking fields such as score or priority are rejected."),
		mcp.WithString("node", mcp.Required(), mcp.Description("Node as a JSON object: title, synopsis, function_id, position")),
	), s.addNode)

	s.mcp.AddTool(mcp.NewTool("check_ui_text",
		mcp.WithDescription("Check text for system-voice terms that UI copy must not use."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to check")),
	), s.checkUIText)

	s.mcp.AddTool(mcp.NewTool("get_map_format",
		mcp.WithDescription("Returns the TERA map and exchange file format. "+
			"Call this before changing sector images or nodes."),
	), s.getMapFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Map Format",
			mcp.WithResourceDescription("Map document and sector image exchange file format."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readMapFormatResource,
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

// toolError renders domain errors as tool errors. Guard errors carry the
// offending field or term in the message.
func toolError(err error) *mcp.CallToolResult {
	var ffe *guard.ForbiddenFieldError
	if errors.As(err, &ffe) {
		return mcp.NewToolResultError(fmt.Sprintf("forbidden field %q", ffe.Field))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) getMap(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.sess.Current()
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(res), nil
}

func (s *Server) listFunctions(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var b strings.Builder
	for i, name := range models.FunctionNames {
		fmt.Fprintf(&b, "%d\t%s\n", i+1, name)
	}
	for _, g := range models.FunctionGroups {
		fmt.Fprintf(&b, "%s\t%v\n", g.Name, g.Funcs)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) setSectorImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fid, err := req.RequireInt("function_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	image, err := req.RequireString("image")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if !strings.HasPrefix(image, "data:") {
		data, err := s.fetch(ctx, image)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if image, err = imagedata.FromBytes(data); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	res, err := s.sess.SetSectorImage(ctx, req.GetString("revision", ""), fid, image)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("sector %d image set, revision %s", fid, res.Revision)), nil
}

func (s *Server) deleteSectorImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fid, err := req.RequireInt("function_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.sess.DeleteSectorImage(ctx, req.GetString("revision", ""), fid)
	if err != nil {
		return toolError(err), nil
	}
	if !res.Changed {
		return mcp.NewToolResultText(fmt.Sprintf("sector %d has no image", fid)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("sector %d image deleted, revision %s", fid, res.Revision)), nil
}

func (s *Server) exportSectorImages(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := s.sess.ExportSectorImages()
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) importSectorImages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.sess.ImportSectorImages(ctx, req.GetString("revision", ""), []byte(content))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("imported %d sector images, revision %s",
		len(res.Doc.SectorImages), res.Revision)), nil
}

func (s *Server) addNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("node")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var n models.Node
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return mcp.NewToolResultError("node must be a JSON object: " + err.Error()), nil
	}
	added, _, err := s.sess.AddNode(ctx, "", n)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(added), nil
}

func (s *Server) checkUIText(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var sve *guard.SystemVoiceError
	if err := guard.CheckUIText(text); errors.As(err, &sve) {
		return mcp.NewToolResultError(fmt.Sprintf("system-voice term %q (%s)", sve.Term, sve.Lang)), nil
	} else if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("ok"), nil
}

func (s *Server) getMapFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MapFormatContract), nil
}

func (s *Server) readMapFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     MapFormatContract,
		},
	}, nil
}
