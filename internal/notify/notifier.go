// Package notify is the fire-and-forget notification boundary. Failures are
// logged and never block or fail the orchestrator.
package notify

import (
	"context"
	"log/slog"
)

// TemplateKind names a notification template rendered by the external
// notification service. Rendering is out of scope here.
type TemplateKind string

const (
	TemplateImportDropped      TemplateKind = "import_dropped"
	TemplateDaoConflict        TemplateKind = "dao_conflict"
	TemplateOnboardingComplete TemplateKind = "onboarding_complete"
)

// Notifier delivers a notification to one user. Implementations must never
// return control-flow-relevant errors; delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, user string, template TemplateKind, params map[string]string)
}

// LogNotifier records notifications in the structured log. Used when no
// delivery backend is configured, and as the development default.
type LogNotifier struct {
	logger *slog.Logger
}

// Compile-time check that LogNotifier implements Notifier.
var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the would-be notification.
func (n *LogNotifier) Notify(ctx context.Context, user string, template TemplateKind, params map[string]string) {
	n.logger.Info("notification", "user", user, "template", template, "params", params)
}
