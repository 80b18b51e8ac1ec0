// Package capability answers whether an overlay can be presented right now.
// Proposals are only made when a checker says yes.
package capability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

// NotificationsName is the well-known bus name of the desktop notification service.
const NotificationsName = "org.freedesktop.Notifications"

// Checker reports whether a presentation surface can be shown.
type Checker interface {
	CanPresent(ctx context.Context) bool
}

// Static is a Checker with a fixed answer.
type Static bool

// CanPresent implements Checker.
func (s Static) CanPresent(context.Context) bool { return bool(s) }

// Func adapts a plain function to a Checker.
type Func func(ctx context.Context) bool

// CanPresent implements Checker.
func (f Func) CanPresent(ctx context.Context) bool { return f(ctx) }

// DBusChecker reports true when some process owns a bus name on the session
// bus, by default the notification service.
type DBusChecker struct {
	mu      sync.Mutex
	conn    *dbus.Conn
	connect func() (*dbus.Conn, error)
	logger  *slog.Logger

	// Name is the bus name that must have an owner.
	Name string
}

// NewDBusChecker creates a checker that uses the shared session bus connection.
func NewDBusChecker(logger *slog.Logger) *DBusChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBusChecker{
		connect: dbus.SessionBus,
		logger:  logger,
		Name:    NotificationsName,
	}
}

// CanPresent implements Checker. Bus errors are logged and reported as false.
func (c *DBusChecker) CanPresent(ctx context.Context) bool {
	owned, err := c.HasOwner(ctx)
	if err != nil {
		c.logger.Warn("cannot determine overlay capability", "name", c.Name, "error", err)
		return false
	}
	if !owned {
		c.logger.Debug("no owner for bus name, overlay unavailable", "name", c.Name)
	}
	return owned
}

// HasOwner asks the bus daemon whether Name currently has an owner.
func (c *DBusChecker) HasOwner(ctx context.Context) (bool, error) {
	conn, err := c.session()
	if err != nil {
		return false, err
	}

	var owned bool
	err = conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.NameHasOwner", 0, c.Name).Store(&owned)
	if err != nil {
		return false, fmt.Errorf("NameHasOwner %s: %w", c.Name, err)
	}
	return owned, nil
}

func (c *DBusChecker) session() (*dbus.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.Connected() {
		return c.conn, nil
	}
	conn, err := c.connect()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	c.conn = conn
	return conn, nil
}
