// Package utils provides utility functions for the application.
package utils

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultCountryCode is used when a phone number is submitted without an
// international prefix. Overridable via OTP_DEFAULT_COUNTRY_CODE.
const DefaultCountryCode = "+234"

var (
	e164Regex      = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)
	nonPhoneChars  = regexp.MustCompile(`[\s\-().]`)
	digitOnlyRegex = regexp.MustCompile(`^\d+$`)
)

// NormalizePhone canonicalizes a raw phone number into E.164 form.
// Numbers without an international prefix get the given country code; a
// leading zero is treated as the national trunk prefix and dropped.
func NormalizePhone(raw, countryCode string) (string, error) {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}

	cleaned := nonPhoneChars.ReplaceAllString(strings.TrimSpace(raw), "")
	if cleaned == "" {
		return "", fmt.Errorf("phone number is empty")
	}

	if strings.HasPrefix(cleaned, "00") {
		cleaned = "+" + cleaned[2:]
	}

	if !strings.HasPrefix(cleaned, "+") {
		if !digitOnlyRegex.MatchString(cleaned) {
			return "", fmt.Errorf("phone number contains invalid characters")
		}
		cleaned = strings.TrimPrefix(cleaned, "0")
		cleaned = countryCode + cleaned
	}

	if !e164Regex.MatchString(cleaned) {
		return "", fmt.Errorf("phone number is not a valid E.164 number")
	}

	return cleaned, nil
}

// IsValidE164 reports whether the number is already in canonical E.164 form.
func IsValidE164(phone string) bool {
	return e164Regex.MatchString(phone)
}

// MaskPhone hides the middle digits of a phone number for logs and responses.
func MaskPhone(phone string) string {
	if len(phone) < 8 {
		return "****"
	}
	return phone[:4] + "****" + phone[len(phone)-4:]
}
