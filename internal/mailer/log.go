package mailer

import (
	"context"
	"log"
)

// LogMailer writes mails to the process log instead of sending them.
// Development fallback when no mail API key is configured; config refuses
// to start production without one.
type LogMailer struct{}

// Send logs the mail and returns nil.
func (LogMailer) Send(ctx context.Context, to, subject, html string) error {
	log.Printf("mailer: would send to=%s subject=%q\n%s", to, subject, html)
	return nil
}
