package content

import (
	"context"
	"errors"
	"fmt"
	"html"
)

// Policy decides what happens when an asset is missing.
type Policy string

const (
	// PolicyPlaceholder substitutes a placeholder document.
	PolicyPlaceholder Policy = "placeholder"
	// PolicyRequired treats a missing asset as a startup error.
	PolicyRequired Policy = "required"
)

// ParsePolicy validates s.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyPlaceholder, PolicyRequired:
		return p, nil
	case "":
		return PolicyPlaceholder, nil
	default:
		return "", fmt.Errorf("unknown content policy %q", s)
	}
}

// Apply returns the provider tools should use under policy pol. Under the
// required policy it first checks that every name resolves.
func Apply(ctx context.Context, pol Policy, p Provider, names ...string) (Provider, error) {
	switch pol {
	case PolicyRequired:
		if err := Require(ctx, p, names...); err != nil {
			return nil, err
		}
		return p, nil
	case PolicyPlaceholder, "":
		return WithPlaceholder(p), nil
	default:
		return nil, fmt.Errorf("unknown content policy %q", pol)
	}
}

// Require fails if any of names is missing from p.
func Require(ctx context.Context, p Provider, names ...string) error {
	var errs []error
	for _, name := range names {
		if _, err := p.Asset(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("asset %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// WithPlaceholder wraps p so that missing assets resolve to a placeholder.
func WithPlaceholder(p Provider) Provider {
	return placeholder{next: p}
}

type placeholder struct {
	next Provider
}

func (p placeholder) Asset(ctx context.Context, name string) (Asset, error) {
	a, err := p.next.Asset(ctx, name)
	if errors.Is(err, ErrNotFound) && validName(name) {
		return Asset{
			Name:        name,
			MimeType:    mimeTypeOf(name),
			Data:        []byte(placeholderDoc(name)),
			Placeholder: true,
		}, nil
	}
	return a, err
}

func (p placeholder) List(ctx context.Context) ([]string, error) {
	return p.next.List(ctx)
}

func placeholderDoc(name string) string {
	return "<!doctype html><html><body><p>Content for " + html.EscapeString(name) +
		" is not available.</p></body></html>"
}
