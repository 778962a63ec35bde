// Package ticket encodes registration credentials into scannable QR images
// and issues them exactly once per registration.
package ticket

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/Shivanand-hulikatti/campus-events/internal/apperr"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
)

// Payload is the credential embedded in a ticket. Field order is fixed, so
// encoding the same registration always yields the same bytes.
type Payload struct {
	RegistrationID string `json:"registrationId"`
	EventID        string `json:"eventId"`
	UserID         string `json:"userId"`
}

// PayloadFor returns the credential of reg.
func PayloadFor(reg *model.Registration) Payload {
	return Payload{RegistrationID: reg.ID, EventID: reg.EventID, UserID: reg.UserID}
}

func (p Payload) validate() error {
	var errs []apperr.FieldError
	if strings.TrimSpace(p.RegistrationID) == "" {
		errs = append(errs, apperr.FieldError{Field: "registrationId", Msg: "required"})
	}
	if strings.TrimSpace(p.EventID) == "" {
		errs = append(errs, apperr.FieldError{Field: "eventId", Msg: "required"})
	}
	if strings.TrimSpace(p.UserID) == "" {
		errs = append(errs, apperr.FieldError{Field: "userId", Msg: "required"})
	}
	return apperr.Validation(errs)
}

// Codec turns payloads into strings and QR images and back.
type Codec struct {
	size  int
	level qrcode.RecoveryLevel
}

// NewCodec builds a codec rendering size×size PNGs. recovery is one of
// low, medium, high, highest; anything else means medium.
func NewCodec(size int, recovery string) *Codec {
	level := qrcode.Medium
	switch strings.ToLower(recovery) {
	case "low":
		level = qrcode.Low
	case "high":
		level = qrcode.High
	case "highest":
		level = qrcode.Highest
	}
	if size <= 0 {
		size = 256
	}
	return &Codec{size: size, level: level}
}

// Encode serialises p as compact JSON.
func (c *Codec) Encode(p Payload) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal ticket payload: %w", err)
	}
	return string(b), nil
}

// Decode parses a scanned payload, rejecting unknown or missing fields.
func (c *Codec) Decode(s string) (Payload, error) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(s)))
	dec.DisallowUnknownFields()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return Payload{}, apperr.Validation([]apperr.FieldError{{Field: "payload", Msg: "not a ticket payload"}})
	}
	if dec.More() {
		return Payload{}, apperr.Validation([]apperr.FieldError{{Field: "payload", Msg: "trailing data"}})
	}
	if err := p.validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// Render draws payload as a QR code PNG.
func (c *Codec) Render(payload string) ([]byte, error) {
	png, err := qrcode.Encode(payload, c.level, c.size)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	return png, nil
}

// Matches reports whether a scanned payload string is the one issued on reg.
func Matches(reg *model.Registration, scanned string) bool {
	return reg.HasTicket() && reg.Ticket.Payload == strings.TrimSpace(scanned)
}
