// Package catalog defines the tools this server offers.
package catalog

import (
	"context"
	"fmt"

	"github.com/ggoodman/mcp-sse-server-go/content"
	"github.com/ggoodman/mcp-sse-server-go/mcp"
	"github.com/ggoodman/mcp-sse-server-go/mcpservice"
)

// RenderTemplate is the content asset the render tool embeds.
const RenderTemplate = "render.html"

// RequiredAssets lists the content assets the catalog depends on.
func RequiredAssets() []string {
	return []string{RenderTemplate}
}

type EchoArgs struct {
	Message string `json:"message" jsonschema:"description=Text to echo back"`
}

type EchoOutput struct {
	Message string `json:"message"`
}

type RenderArgs struct {
	Message string `json:"message" jsonschema:"description=Text to display in the widget"`
	Title   string `json:"title,omitempty" jsonschema:"description=Optional widget heading"`
}

type RenderOutput struct {
	Message  string `json:"message"`
	Title    string `json:"title,omitempty"`
	Template string `json:"template"`
}

// Tools builds the tool set. Widget documents are resolved through p on
// every call so that content changes are picked up without a restart.
func Tools(p content.Provider) *mcpservice.ToolsContainer {
	return mcpservice.NewToolsContainer(
		mcpservice.NewToolWithOutput[EchoArgs, EchoOutput]("echo", echo,
			mcpservice.WithToolTitle("Echo"),
			mcpservice.WithToolDescription("Echo a message back to the caller"),
		),
		mcpservice.NewToolWithOutput[RenderArgs, RenderOutput]("render", render(p),
			mcpservice.WithToolTitle("Render"),
			mcpservice.WithToolDescription("Render a message in an HTML widget"),
			mcpservice.WithToolMeta(map[string]any{
				"openai/outputTemplate": mcpservice.WidgetURI(RenderTemplate),
			}),
		),
	)
}

func echo(ctx context.Context, s mcpservice.Session, w mcpservice.ToolResponseWriterTyped[EchoOutput], r *mcpservice.ToolRequest[EchoArgs]) error {
	msg := r.Args().Message
	w.SetStructured(EchoOutput{Message: msg})
	return w.AppendText("Echo: " + msg)
}

func render(p content.Provider) func(context.Context, mcpservice.Session, mcpservice.ToolResponseWriterTyped[RenderOutput], *mcpservice.ToolRequest[RenderArgs]) error {
	return func(ctx context.Context, s mcpservice.Session, w mcpservice.ToolResponseWriterTyped[RenderOutput], r *mcpservice.ToolRequest[RenderArgs]) error {
		args := r.Args()

		asset, err := p.Asset(ctx, RenderTemplate)
		if err != nil {
			return fmt.Errorf("load %s: %w", RenderTemplate, err)
		}

		summary := "Rendered: " + args.Message
		if args.Title != "" {
			summary = fmt.Sprintf("Rendered %q: %s", args.Title, args.Message)
		}
		if err := w.AppendText(summary); err != nil {
			return err
		}
		if err := w.EmbedResource(mcp.ResourceContents{
			URI:      mcpservice.WidgetURI(RenderTemplate),
			MimeType: asset.MimeType,
			Text:     asset.Text(),
		}); err != nil {
			return err
		}
		if asset.Placeholder {
			w.SetMeta("placeholder", true)
		}
		w.SetStructured(RenderOutput{Message: args.Message, Title: args.Title, Template: mcpservice.WidgetURI(RenderTemplate)})
		return nil
	}
}
