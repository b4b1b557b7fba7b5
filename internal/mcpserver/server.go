// Package mcpserver exposes the video catalog as Model Context Protocol tools.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/fpang/video-summarizer/internal/catalog"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

// ServerName is advertised to MCP clients.
const ServerName = "VideoMetadata"

// UpdateInput are the arguments of update_video_metadata.
type UpdateInput struct {
	VideoName   string `json:"video_name" jsonschema:"name of the video as stored in the catalog"`
	Category    string `json:"category" jsonschema:"content category, e.g. Pets & Animals"`
	Suitability string `json:"suitability" jsonschema:"youngest suitable audience: under_5, under_10, under_13, under_16, under_18 or adult"`
}

// UpdateOutput reports whether the record changed.
type UpdateOutput struct {
	Updated bool   `json:"updated"`
	Message string `json:"message"`
}

// GetInput are the arguments of get_video.
type GetInput struct {
	VideoName string `json:"video_name" jsonschema:"name of the video as stored in the catalog"`
}

// VideoOutput is the catalog record as returned to MCP clients.
type VideoOutput struct {
	Found       bool   `json:"found"`
	Name        string `json:"name,omitempty"`
	Path        string `json:"path,omitempty"`
	MIMEType    string `json:"mimeType,omitempty"`
	Category    string `json:"category,omitempty"`
	Suitability string `json:"suitability,omitempty"`
	Summarized  bool   `json:"summarized"`
}

type handlers struct {
	store catalog.Store
}

// New returns an MCP server with the catalog tools registered.
func New(store catalog.Store, version string) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)
	h := &handlers{store: store}

	mcp.AddTool(s, &mcp.Tool{
		Name:        "update_video_metadata",
		Description: "Set the category and audience suitability of a video.",
	}, h.updateVideoMetadata)
	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_video",
		Description: "Look up a video's catalog record by name.",
	}, h.getVideo)
	return s
}

func (h *handlers) updateVideoMetadata(ctx context.Context, _ *mcp.CallToolRequest, in UpdateInput) (*mcp.CallToolResult, UpdateOutput, error) {
	name := strings.TrimSpace(in.VideoName)
	category := strings.TrimSpace(in.Category)
	if name == "" || category == "" {
		return nil, UpdateOutput{}, fmt.Errorf("video_name and category are required")
	}
	suitability, err := catalog.ParseSuitability(in.Suitability)
	if err != nil {
		return nil, UpdateOutput{}, err
	}

	log.Info().
		Str("video", name).
		Str("category", category).
		Str("suitability", string(suitability)).
		Msg("MCP metadata update")

	ok, err := h.store.Update(ctx, name, catalog.Update{Category: &category, Suitability: &suitability})
	if err != nil {
		return nil, UpdateOutput{}, fmt.Errorf("update %s: %w", name, err)
	}
	if !ok {
		return nil, UpdateOutput{Message: "Update failed or video not found for " + name}, nil
	}
	return nil, UpdateOutput{Updated: true, Message: "Updated metadata for " + name}, nil
}

func (h *handlers) getVideo(ctx context.Context, _ *mcp.CallToolRequest, in GetInput) (*mcp.CallToolResult, VideoOutput, error) {
	v, err := h.store.GetByName(ctx, strings.TrimSpace(in.VideoName))
	if err != nil {
		return nil, VideoOutput{}, err
	}
	if v == nil {
		return nil, VideoOutput{}, nil
	}
	return nil, VideoOutput{
		Found:       true,
		Name:        v.Name,
		Path:        v.Path,
		MIMEType:    v.MIMEType,
		Category:    v.Category,
		Suitability: string(v.Suitability),
		Summarized:  v.Summarized,
	}, nil
}
