package tmux

import "context"

// Service delegates to the package-level tmux functions, giving
// internal/adapter a value type it can embed without importing the
// package functions directly.
type Service struct{}

func (Service) CreateSession(ctx context.Context, name, cwd string) error {
	return CreateSession(ctx, name, cwd)
}

func (Service) KillSession(ctx context.Context, session string) error {
	return KillSession(ctx, session)
}

func (Service) SessionExists(ctx context.Context, session string) (bool, error) {
	return SessionExists(ctx, session)
}

func (Service) SendKeys(ctx context.Context, paneID, keys string, enter bool) error {
	return SendKeys(ctx, paneID, keys, enter)
}

func (Service) CapturePaneLines(ctx context.Context, target string, lines int) (string, error) {
	return CapturePaneLines(ctx, target, lines)
}
