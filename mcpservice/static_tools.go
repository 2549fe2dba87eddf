package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ggoodman/mcp-sse-server-go/mcp"
	"github.com/invopop/jsonschema"
)

// ToolHandler handles a call whose arguments already passed schema validation.
type ToolHandler func(ctx context.Context, session Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)

// StaticTool pairs a tool descriptor with its handler.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolRequest carries the decoded arguments of type A.
type ToolRequest[A any] struct {
	name string
	raw  json.RawMessage
	args A
}

func (r *ToolRequest[A]) Name() string                  { return r.name }
func (r *ToolRequest[A]) RawArguments() json.RawMessage { return r.raw }
func (r *ToolRequest[A]) Args() A                       { return r.args }

// ToolOption configures NewTool and NewToolWithOutput.
type ToolOption func(*toolConfig)

type toolConfig struct {
	title                     string
	description               string
	allowAdditionalProperties bool
	meta                      map[string]any
}

func WithToolTitle(title string) ToolOption {
	return func(c *toolConfig) { c.title = title }
}

func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolAllowAdditionalProperties permits argument fields the struct does
// not declare. By default they are rejected.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = allow }
}

// WithToolMeta attaches _meta to the tool descriptor.
func WithToolMeta(meta map[string]any) ToolOption {
	return func(c *toolConfig) { c.meta = meta }
}

func (c toolConfig) descriptor(name string, input mcp.ToolInputSchema) mcp.Tool {
	return mcp.Tool{
		Name:        name,
		Title:       c.title,
		Description: c.description,
		InputSchema: input,
		Meta:        c.meta,
	}
}

// NewTool builds a tool whose input schema is reflected from A.
func NewTool[A any](name string, fn func(ctx context.Context, session Session, w ToolResponseWriter, r *ToolRequest[A]) error, opts ...ToolOption) StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	desc := cfg.descriptor(name, reflectToMCPInputSchema[A](cfg.allowAdditionalProperties))

	handler := func(ctx context.Context, session Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
		a, err := decodeArgs[A](req, cfg.allowAdditionalProperties)
		if err != nil {
			return nil, err
		}
		w := newToolResponseWriter(ctx)
		if err := fn(ctx, session, w, &ToolRequest[A]{name: req.Name, raw: req.Arguments, args: a}); err != nil {
			return nil, err
		}
		return w.Result(), nil
	}

	return StaticTool{Descriptor: desc, Handler: handler}
}

// NewToolWithOutput builds a tool with typed input A and structured output O.
// The output schema is reflected from O.
func NewToolWithOutput[A, O any](name string, fn func(ctx context.Context, session Session, w ToolResponseWriterTyped[O], r *ToolRequest[A]) error, opts ...ToolOption) StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	desc := cfg.descriptor(name, reflectToMCPInputSchema[A](cfg.allowAdditionalProperties))
	out := reflectToMCPOutputSchema[O]()
	desc.OutputSchema = &out

	handler := func(ctx context.Context, session Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
		a, err := decodeArgs[A](req, cfg.allowAdditionalProperties)
		if err != nil {
			return nil, err
		}
		tw := &toolResponseWriterTyped[O]{toolResponseWriter: newToolResponseWriter(ctx)}
		if err := fn(ctx, session, tw, &ToolRequest[A]{name: req.Name, raw: req.Arguments, args: a}); err != nil {
			return nil, err
		}
		res := tw.Result()
		if tw.structured != nil {
			b, err := json.Marshal(tw.structured)
			if err != nil {
				return nil, fmt.Errorf("marshal structured content: %w", err)
			}
			var m map[string]any
			if err := json.Unmarshal(b, &m); err != nil {
				return nil, fmt.Errorf("structured content must be an object: %w", err)
			}
			res.StructuredContent = m
		}
		return res, nil
	}
	return StaticTool{Descriptor: desc, Handler: handler}
}

func decodeArgs[A any](req *mcp.CallToolRequestReceived, allowAdditional bool) (A, error) {
	var a A
	raw := bytes.TrimSpace(req.Arguments)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return a, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if !allowAdditional {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&a); err != nil {
		return a, &ArgumentError{Tool: req.Name, Violation: err.Error()}
	}
	return a, nil
}

func newReflector(allowAdditional bool) *jsonschema.Reflector {
	return &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: allowAdditional,
	}
}

// reflectToMCPInputSchema reflects A and down-converts it to the simplified
// tool input schema. Non-object types yield an empty object schema.
func reflectToMCPInputSchema[A any](allowAdditional bool) mcp.ToolInputSchema {
	s := newReflector(allowAdditional).Reflect(new(A))
	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{
			Type:                 "object",
			Properties:           map[string]mcp.SchemaProperty{},
			AdditionalProperties: allowAdditional,
		}
	}
	return mcp.ToolInputSchema{
		Type:                 "object",
		Properties:           toMCPProperties(s),
		Required:             append([]string(nil), s.Required...),
		AdditionalProperties: allowAdditional,
	}
}

func reflectToMCPOutputSchema[O any]() mcp.ToolOutputSchema {
	s := newReflector(false).Reflect(new(O))
	if s == nil || s.Type != "object" {
		return mcp.ToolOutputSchema{Type: "object", Properties: map[string]mcp.SchemaProperty{}}
	}
	return mcp.ToolOutputSchema{
		Type:       "object",
		Properties: toMCPProperties(s),
		Required:   append([]string(nil), s.Required...),
	}
}

func toMCPProperties(s *jsonschema.Schema) map[string]mcp.SchemaProperty {
	props := make(map[string]mcp.SchemaProperty)
	if s.Properties == nil {
		return props
	}
	for el := s.Properties.Oldest(); el != nil; el = el.Next() {
		props[el.Key] = toMCPProperty(el.Value)
	}
	return props
}

func toMCPProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
		MinLength:   s.MinLength,
		MaxLength:   s.MaxLength,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toMCPProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		p.Properties = toMCPProperties(s)
		p.Required = append([]string(nil), s.Required...)
	}
	return p
}

// TextResult builds a result with a single text block.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: s}}}
}

// Errorf builds a tool-level error result (isError=true). Use it for
// failures the model should see; return a Go error for server faults.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	res := TextResult(fmt.Sprintf(format, a...))
	res.IsError = true
	return res
}
