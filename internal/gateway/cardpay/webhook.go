package cardpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Webhook event types delivered by the gateway.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventAccountUpdated   = "account.updated"
	EventPayoutPaid       = "payout.paid"
	EventPayoutFailed     = "payout.failed"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "Cardpay-Signature"

// Event is one webhook delivery. Payment is populated for payment.* events.
type Event struct {
	ID      string
	Type    string
	Created int64
	Payment Payment
}

// VerifySignature checks the webhook signature over the raw body using a
// constant-time comparison.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(body)
	want := mac.Sum(nil)

	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(want, got)
}

// ParseEvent decodes a webhook event envelope. The envelope is polymorphic
// (payment events nest a payment object, account and payout events do not),
// so it is walked field by field instead of unmarshalled into one struct.
func ParseEvent(body []byte) (*Event, error) {
	var ev Event
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			if err != nil {
				return err
			}
			ev.ID = v
		case "type":
			v, err := d.Str()
			if err != nil {
				return err
			}
			ev.Type = v
		case "created":
			v, err := d.Int64()
			if err != nil {
				return err
			}
			ev.Created = v
		case "data":
			return d.Obj(func(d *jx.Decoder, key string) error {
				if key != "payment" {
					return d.Skip()
				}
				p, err := decodePayment(d)
				if err != nil {
					return err
				}
				ev.Payment = *p
				return nil
			})
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode event")
	}

	if ev.ID == "" || ev.Type == "" {
		return nil, errors.New("event missing id or type")
	}
	return &ev, nil
}

func parsePayment(raw []byte) (*Payment, error) {
	return decodePayment(jx.DecodeBytes(raw))
}

func decodePayment(d *jx.Decoder) (*Payment, error) {
	p := &Payment{Metadata: map[string]string{}}
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			if err != nil {
				return err
			}
			p.ID = v
		case "status":
			v, err := d.Str()
			if err != nil {
				return err
			}
			p.Status = v
		case "amount":
			v, err := d.Int64()
			if err != nil {
				return err
			}
			p.AmountMinor = v
		case "currency":
			v, err := d.Str()
			if err != nil {
				return err
			}
			p.Currency = v
		case "application_fee":
			v, err := d.Int64()
			if err != nil {
				return err
			}
			p.FeeMinor = v
		case "approval_url":
			v, err := d.Str()
			if err != nil {
				return err
			}
			p.ApprovalURL = v
		case "metadata":
			return d.Obj(func(d *jx.Decoder, key string) error {
				v, err := d.Str()
				if err != nil {
					return err
				}
				p.Metadata[key] = v
				return nil
			})
		default:
			return d.Skip()
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, errors.New("payment missing id")
	}
	return p, nil
}
