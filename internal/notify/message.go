package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/campus-events/internal/model"
)

const (
	ticketContentID = "ticketqrcode"
	ticketFilename  = "ticket-qr.png"
)

// Attachment is a file carried by a Message. Inline attachments are
// referenced from the HTML body by ContentID.
type Attachment struct {
	Filename    string
	ContentID   string
	ContentType string
	Data        []byte
	Inline      bool
}

// Message is a rendered email, independent of the transport.
type Message struct {
	To          string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

var ticketHTML = template.Must(template.New("ticket").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; border: 1px solid #e2e8f0; border-radius: 16px; overflow: hidden;">
  <div style="background-color: #ea580c; padding: 24px; text-align: center;">
    <h1 style="color: #ffffff; margin: 0; font-size: 24px;">{{if .Reminder}}Event Reminder{{else}}Your Event Ticket{{end}}</h1>
  </div>
  <div style="padding: 32px; background-color: #ffffff;">
    <h2 style="color: #0f172a; margin-top: 0;">{{.Title}}</h2>
    <p style="color: #64748b;">{{if .Reminder}}Your event is coming up. Bring this ticket to the entrance.{{else}}Thank you for registering! Here are your event details.{{end}}</p>
    <table style="width: 100%; margin-bottom: 24px;">
      <tr><td style="color: #64748b; font-size: 12px; text-transform: uppercase;">Date &amp; Time</td></tr>
      <tr><td style="padding-bottom: 16px; color: #0f172a; font-weight: bold;">{{.When}}</td></tr>
      <tr><td style="color: #64748b; font-size: 12px; text-transform: uppercase;">Location</td></tr>
      <tr><td style="padding-bottom: 16px; color: #0f172a; font-weight: bold;">{{.Location}}</td></tr>
    </table>
    <div style="text-align: center; border-top: 2px dashed #e2e8f0; padding-top: 24px;">
      <p style="color: #64748b; font-size: 14px;">Scan this QR code at the entrance</p>
      <img src="cid:{{.ContentID}}" alt="Ticket QR Code" style="width: 150px; height: 150px;" />
      <p style="margin-top: 16px; font-family: monospace; color: #94a3b8;">{{.Code}}</p>
    </div>
  </div>
  <div style="background-color: #f1f5f9; padding: 16px; text-align: center; color: #94a3b8; font-size: 12px;">
    &copy; {{.Year}} Campus Events. All rights reserved.
  </div>
</div>
`))

type ticketView struct {
	Title     string
	When      string
	Location  string
	Code      string
	ContentID string
	Year      int
	Reminder  bool
}

// shortCode is the human-readable reference printed under the QR code.
func shortCode(registrationID string) string {
	id := strings.ReplaceAll(registrationID, "-", "")
	if len(id) > 8 {
		id = id[len(id)-8:]
	}
	return strings.ToUpper(id)
}

// ticketMessage renders the ticket email for one attendee.
func ticketMessage(to string, e *model.Event, registrationID string, t *model.Ticket, reminder bool) (*Message, error) {
	view := ticketView{
		Title:     e.Title,
		When:      e.StartsAt.UTC().Format("Mon, 02 Jan 2006 15:04 MST"),
		Location:  e.Location,
		Code:      shortCode(registrationID),
		ContentID: ticketContentID,
		Year:      time.Now().Year(),
		Reminder:  reminder,
	}

	var html bytes.Buffer
	if err := ticketHTML.Execute(&html, view); err != nil {
		return nil, fmt.Errorf("render ticket email: %w", err)
	}

	subject := "Your Ticket for " + e.Title
	if reminder {
		subject = "Reminder: " + subject
	}

	text := fmt.Sprintf("%s\n\nDate & Time: %s\nLocation: %s\nTicket: %s\n\nShow the attached QR code at the entrance.\n",
		e.Title, view.When, e.Location, view.Code)

	return &Message{
		To:      to,
		Subject: subject,
		HTML:    html.String(),
		Text:    text,
		Attachments: []Attachment{{
			Filename:    ticketFilename,
			ContentID:   ticketContentID,
			ContentType: "image/png",
			Data:        t.Image,
			Inline:      true,
		}},
	}, nil
}
