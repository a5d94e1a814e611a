package middleware

import (
	"context"
	"regexp"

	"github.com/quotecraft/drew/pkg/domain"
	"github.com/quotecraft/drew/pkg/ports"
)

const mask = "***"

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	// phoneCandidate finds digit runs that might be phone numbers; looksLikePhone
	// decides.
	phoneCandidate = regexp.MustCompile(`\+?\(?\d[\d\-. ()]{5,}\d`)
	localPhone     = regexp.MustCompile(`^\d{3}[-. ]\d{4}$`)
	decimalTail    = regexp.MustCompile(`\.\d{1,2}$`)
)

type piiMiddleware struct {
	next ports.ContextStore
}

// NewPIIMiddleware creates a middleware that masks client contact details
// before they reach the store. The quote's client fields are replaced and
// email addresses or phone numbers in the transcript are redacted. Loaded
// conversations keep the mask.
func NewPIIMiddleware() Middleware {
	return func(next ports.ContextStore) ports.ContextStore {
		return &piiMiddleware{next: next}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, conv *domain.Conversation) error {
	// Work on a copy; the caller may still be rendering from conv.
	cloned := *conv
	cloned.Context = conv.Context.Clone()
	maskContext(cloned.Context)
	return m.next.Save(ctx, &cloned)
}

func (m *piiMiddleware) Load(ctx context.Context, id string) (*domain.Conversation, error) {
	return m.next.Load(ctx, id)
}

func (m *piiMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func maskContext(c *domain.Context) {
	q := &c.Quote
	for _, f := range []*string{&q.ClientName, &q.ClientEmail, &q.ClientPhone, &q.ClientAddress} {
		if *f != "" {
			*f = mask
		}
	}
	for i, t := range c.Transcript {
		c.Transcript[i].Text = redact(t.Text)
	}
	c.LastInput = redact(c.LastInput)
}

func redact(text string) string {
	text = emailPattern.ReplaceAllString(text, mask)
	return phoneCandidate.ReplaceAllStringFunc(text, func(m string) string {
		if looksLikePhone(m) {
			return mask
		}
		return m
	})
}

// looksLikePhone accepts 10 to 15 digits, or a 7-digit local number written
// as 555-1234. Amounts ending in cents are never phones.
func looksLikePhone(m string) bool {
	if decimalTail.MatchString(m) {
		return false
	}
	digits := 0
	for _, r := range m {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	switch {
	case digits >= 10 && digits <= 15:
		return true
	case digits == 7:
		return localPhone.MatchString(m)
	default:
		return false
	}
}
