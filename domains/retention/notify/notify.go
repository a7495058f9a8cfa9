// Package notify turns retention cycle reports into operator emails.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/nekotab/control-plane/domains/retention/engine"
	"github.com/nekotab/control-plane/platform/mail"
)

// MailNotifier emails a cycle summary to a fixed recipient list.
type MailNotifier struct {
	mailer     *mail.Mailer
	recipients []string
}

// NewMailNotifier constructs a MailNotifier. With no recipients or a
// disabled mailer, NotifyCycle is a no-op.
func NewMailNotifier(mailer *mail.Mailer, recipients []string) *MailNotifier {
	return &MailNotifier{mailer: mailer, recipients: recipients}
}

func (n *MailNotifier) NotifyCycle(ctx context.Context, report engine.Report) error {
	if !n.mailer.Enabled() || len(n.recipients) == 0 {
		return nil
	}

	counts := report.Counts()
	subject := fmt.Sprintf("Retention cycle: %d scheduled, %d deleted, %d failed",
		counts[engine.StatusScheduled], counts[engine.StatusDeleted], counts[engine.StatusFailed])

	var b strings.Builder
	b.WriteString("Retention cycle summary\n\n")

	if len(report.Scheduled) > 0 {
		b.WriteString("Scheduled for deletion:\n")
		for _, e := range report.Scheduled {
			fmt.Fprintf(&b, "  %s (%d) owner=%s\n", e.Slug, e.TournamentID, e.OwnerEmail)
		}
		b.WriteString("\n")
	}

	if len(report.Processed) > 0 {
		b.WriteString("Processed:\n")
		for _, e := range report.Processed {
			fmt.Fprintf(&b, "  %s (%d) %s", e.Slug, e.TournamentID, e.Status)
			if e.ArchivePath != "" {
				fmt.Fprintf(&b, " archive=%s", e.ArchivePath)
			}
			if e.ErrorMessage != "" {
				fmt.Fprintf(&b, " error=%s", e.ErrorMessage)
			}
			b.WriteString("\n")
		}
	}

	return n.mailer.Send(n.recipients, subject, b.String())
}

// Ensure interface compliance.
var _ engine.Notifier = (*MailNotifier)(nil)
