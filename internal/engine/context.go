package engine

import (
	"log/slog"

	"github.com/gen2brain/malgo"
)

// Context wraps malgo.AllocatedContext with lifecycle management. The
// context outlives individual devices and is released exactly once.
type Context struct {
	ctx *malgo.AllocatedContext
}

// NewContext initializes the audio backend context
func NewContext() (*Context, error) {
	slog.Debug("initializing audio context")

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("malgo internal", "message", message)
	})
	if err != nil {
		slog.Error("failed to initialize audio context", "error", err)
		return nil, err
	}

	slog.Info("audio context initialized")
	return &Context{ctx: ctx}, nil
}

// Close releases the audio context. Safe to call more than once.
func (c *Context) Close() error {
	if c.ctx == nil {
		return nil
	}

	// malgo requires both Uninit() and Free()
	err := c.ctx.Uninit()
	if err != nil {
		slog.Error("failed to uninitialize audio context", "error", err)
		return err
	}

	c.ctx.Free()
	c.ctx = nil

	slog.Info("audio context closed")
	return nil
}

// Raw returns the underlying malgo context for device operations
func (c *Context) Raw() *malgo.AllocatedContext {
	return c.ctx
}

// IsValid checks if the context is still usable
func (c *Context) IsValid() bool {
	return c.ctx != nil
}
