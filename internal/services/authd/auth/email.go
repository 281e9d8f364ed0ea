package auth

import (
	"fmt"
	"strings"
	"time"
)

func verifyEmailMessage(frontendURL, code string) (subject, body string) {
	subject = "Verify your email address"
	body = fmt.Sprintf(
		"Welcome!\n\n"+
			"Confirm your email address by opening the link below:\n\n"+
			"%s/verify-email/%s\n\n"+
			"If you did not create an account, ignore this message.\n",
		strings.TrimRight(frontendURL, "/"), code)
	return subject, body
}

func resetPasswordMessage(frontendURL, code string, ttl time.Duration) (subject, body string) {
	subject = "Reset your password"
	body = fmt.Sprintf(
		"A password reset was requested for your account.\n\n"+
			"Open the link below to choose a new password:\n\n"+
			"%s/reset-password/%s\n\n"+
			"The link expires in %s. If you did not request a reset, ignore this message.\n",
		strings.TrimRight(frontendURL, "/"), code, formatTTL(ttl))
	return subject, body
}

func formatTTL(ttl time.Duration) string {
	if ttl >= time.Hour && ttl%time.Hour == 0 {
		h := int(ttl / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	m := int(ttl / time.Minute)
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
