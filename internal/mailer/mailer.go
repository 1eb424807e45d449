// Package mailer delivers one-time codes by email.
package mailer

import (
	"context"
	"fmt"
)

// Mailer sends one email. Implementations must respect ctx cancellation.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// CodeEmail renders the subject and HTML body for a one-time code, with
// the code's validity in minutes.
func CodeEmail(code string, validMinutes int) (subject, html string) {
	subject = "Ihr Login-Code für den Mitgliederbereich"
	html = fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Ihr Login-Code</h2>
  <p>Sie haben einen Login-Code für den Mitgliederbereich angefordert.</p>
  <p style="font-size: 32px; font-weight: bold; letter-spacing: 5px;">%s</p>
  <p><strong>Wichtig:</strong></p>
  <ul>
    <li>Dieser Code ist %d Minuten gültig</li>
    <li>Geben Sie den Code niemals an Dritte weiter</li>
    <li>Falls Sie diese E-Mail nicht angefordert haben, ignorieren Sie sie bitte</li>
  </ul>
</body>
</html>`, code, validMinutes)
	return subject, html
}
