package commands

import (
	"context"
	"strings"
)

type claimsKey struct{}

// WithMailAddress returns a context carrying the caller's mail address claim.
func WithMailAddress(ctx context.Context, mailAddress string) context.Context {
	return context.WithValue(ctx, claimsKey{}, strings.TrimSpace(mailAddress))
}

// MailAddressFrom returns the caller's mail address claim.
func MailAddressFrom(ctx context.Context) (string, bool) {
	mailAddress, ok := ctx.Value(claimsKey{}).(string)
	if !ok || mailAddress == "" {
		return "", false
	}
	return mailAddress, true
}
