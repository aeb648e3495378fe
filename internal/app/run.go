package app

import (
	"context"
	"encoding/json"
	"fmt"
)

// Serve runs the HTTP API until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	a.logger.Debug("App.Serve method started.")
	if _, err := a.Initialize(a.ctx); err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}
	addr, err := a.startServer(a.config.Port)
	if err != nil {
		return err
	}
	a.logger.Info("Serving form.", "form", a.model.Name, "address", addr)

	<-ctx.Done()
	a.logger.Debug("App.Serve method finished.")
	return a.closeServer()
}

// PrintJSON writes v as indented JSON to the app output.
func (a *App) PrintJSON(v any) error {
	enc := json.NewEncoder(a.outW)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
