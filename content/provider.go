package content

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"mime"
	"path"
	"strings"
)

// ErrNotFound is returned when a provider has no asset by the requested name.
var ErrNotFound = errors.New("content: asset not found")

// Asset is a named document.
type Asset struct {
	Name     string
	MimeType string
	Data     []byte
	// Placeholder is set when Data is a stand-in for a missing asset.
	Placeholder bool
}

// Text returns the asset body as a string.
func (a Asset) Text() string { return string(a.Data) }

// Provider resolves named assets.
type Provider interface {
	Asset(ctx context.Context, name string) (Asset, error)
	List(ctx context.Context) ([]string, error)
}

//go:embed assets
var defaultAssets embed.FS

// Default returns the provider backed by the assets compiled into the binary.
func Default() *FS {
	sub, err := fs.Sub(defaultAssets, "assets")
	if err != nil {
		panic(err)
	}
	return NewFS(sub)
}

// FS serves assets from an fs.FS. Only top-level regular files are assets.
type FS struct {
	fsys fs.FS
}

func NewFS(fsys fs.FS) *FS {
	return &FS{fsys: fsys}
}

func (p *FS) Asset(ctx context.Context, name string) (Asset, error) {
	if !validName(name) {
		return Asset{}, ErrNotFound
	}
	data, err := fs.ReadFile(p.fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Asset{}, ErrNotFound
		}
		return Asset{}, err
	}
	return Asset{Name: name, MimeType: mimeTypeOf(name), Data: data}, nil
}

func (p *FS) List(ctx context.Context) ([]string, error) {
	entries, err := fs.ReadDir(p.fsys, ".")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && validName(e.Name()) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// validName accepts flat file names only.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return false
	}
	return true
}

func mimeTypeOf(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".htm":
		return "text/html+skybridge"
	case "":
		return "application/octet-stream"
	}
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
