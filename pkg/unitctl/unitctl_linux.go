//go:build linux

package unitctl

import (
	"context"
	"fmt"
	"sync"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Controller holds a lazily opened system bus connection. It is safe for
// concurrent use; a dropped connection is reopened on the next call.
type Controller struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

func New() *Controller { return &Controller{} }

func (c *Controller) connLocked(ctx context.Context) (*dbus.Conn, error) {
	if c.conn != nil && c.conn.Connected() {
		return c.conn, nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	c.conn = conn
	return conn, nil
}

// Do queues action for unit in "replace" mode and waits for the systemd job
// to finish or ctx to end.
func (c *Controller) Do(ctx context.Context, unit, action string) error {
	action, err := normalizeAction(action)
	if err != nil {
		return err
	}
	unit = UnitName(unit)

	c.mu.Lock()
	conn, err := c.connLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	done := make(chan string, 1)
	switch action {
	case "start":
		_, err = conn.StartUnitContext(ctx, unit, "replace", done)
	case "stop":
		_, err = conn.StopUnitContext(ctx, unit, "replace", done)
	case "restart":
		_, err = conn.RestartUnitContext(ctx, unit, "replace", done)
	case "reload":
		_, err = conn.ReloadUnitContext(ctx, unit, "replace", done)
	}
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", action, unit, err)
	}

	select {
	case res := <-done:
		return jobResult(action, unit, res)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}
