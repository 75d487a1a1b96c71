// internal/control/control.go

// Package control feeds operator commands to the engine from outside the
// page: a terminal, an append-only command file, or the status panel binding.
package control

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/isde-autofill/api/schemas"
)

// Handler executes a command. *engine.Engine implements it.
type Handler interface {
	HandleCommand(ctx context.Context, cmd schemas.Command) error
}

// Source produces raw command messages until ctx ends or the input closes.
type Source interface {
	Name() string
	Run(ctx context.Context, d *Dispatcher) error
}

// Dispatcher parses raw messages and hands them to the engine. Bad input is
// logged and dropped; one broken line must not stop a control channel.
type Dispatcher struct {
	handler Handler
	logger  *zap.Logger

	// fallback is attached to start and fill commands that carry no config,
	// which is every command typed on a terminal.
	fallback *schemas.AutomationConfig
}

func NewDispatcher(logger *zap.Logger, handler Handler) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{handler: handler, logger: logger.Named("control")}
}

// SetDefaultConfig sets the applicant used by commands without one.
func (d *Dispatcher) SetDefaultConfig(cfg *schemas.AutomationConfig) {
	d.fallback = cfg
}

// Dispatch parses raw and runs it. The returned error is informational.
func (d *Dispatcher) Dispatch(ctx context.Context, origin string, raw []byte) error {
	cmd, err := schemas.ParseCommand(raw)
	if err != nil {
		d.logger.Warn("Ignoring malformed command.", zap.String("origin", origin), zap.Error(err))
		return err
	}
	if cmd.Config == nil && (cmd.Action == schemas.ActionStartAutomation || cmd.Action == schemas.ActionFillCurrentPage) {
		cmd.Config = d.fallback
	}
	d.logger.Info("Command received.", zap.String("origin", origin), zap.String("action", string(cmd.Action)))
	if err := d.handler.HandleCommand(ctx, cmd); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		d.logger.Warn("Command failed.", zap.String("origin", origin), zap.String("action", string(cmd.Action)), zap.Error(err))
		return err
	}
	return nil
}

// BindingHandler adapts the dispatcher to a page binding callback.
func (d *Dispatcher) BindingHandler(ctx context.Context, origin string) func(payload string) {
	return func(payload string) {
		_ = d.Dispatch(ctx, origin, []byte(payload))
	}
}
