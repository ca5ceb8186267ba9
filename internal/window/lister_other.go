//go:build !linux

package window

import "context"

type unsupportedLister struct{}

// NewLister returns the platform window lister.
func NewLister() Lister { return unsupportedLister{} }

func (unsupportedLister) List(context.Context) ([]Info, error) { return nil, ErrUnsupported }
