//go:build !linux

package unitctl

import "context"

type Controller struct{}

func New() *Controller { return &Controller{} }

func (c *Controller) Do(ctx context.Context, unit, action string) error {
	if _, err := normalizeAction(action); err != nil {
		return err
	}
	return ErrUnsupported
}

func (c *Controller) Close() error { return nil }
