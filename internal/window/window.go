// Package window enumerates on-screen windows and follows one of them while
// it moves or resizes.
package window

import (
	"context"
	"errors"
	"image"
	"strings"
)

// ErrUnsupported is returned by listers on platforms without window enumeration.
var ErrUnsupported = errors.New("window: enumeration not supported on this platform")

// Info describes one top-level window.
type Info struct {
	ID       uint32          `json:"id"`
	Title    string          `json:"title"`
	Owner    string          `json:"owner"`
	OwnerPID int             `json:"ownerPid"`
	Bounds   image.Rectangle `json:"bounds"`
}

// Lister returns the windows currently on screen.
type Lister interface {
	List(ctx context.Context) ([]Info, error)
}

// ListerFunc adapts a function to Lister.
type ListerFunc func(ctx context.Context) ([]Info, error)

func (f ListerFunc) List(ctx context.Context) ([]Info, error) { return f(ctx) }

// FindByID returns the window with the given id.
func FindByID(ctx context.Context, l Lister, id uint32) (Info, bool, error) {
	all, err := l.List(ctx)
	if err != nil {
		return Info{}, false, err
	}
	for _, w := range all {
		if w.ID == id {
			return w, true, nil
		}
	}
	return Info{}, false, nil
}

// FindByOwner returns windows whose owning application name contains owner,
// ignoring case.
func FindByOwner(ctx context.Context, l Lister, owner string) ([]Info, error) {
	return filter(ctx, l, func(w Info) bool { return containsFold(w.Owner, owner) })
}

// FindByTitle returns windows whose title contains title, ignoring case.
func FindByTitle(ctx context.Context, l Lister, title string) ([]Info, error) {
	return filter(ctx, l, func(w Info) bool { return containsFold(w.Title, title) })
}

func filter(ctx context.Context, l Lister, keep func(Info) bool) ([]Info, error) {
	all, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Info
	for _, w := range all {
		if keep(w) {
			out = append(out, w)
		}
	}
	return out, nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
