package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var ErrValidationFailed = errors.New("validation failed")

const (
	MaxFilenameLength = 255
	MaxSymbolLength   = 32
	MaxExchangeLength = 8
	MaxBrokerLength   = 32
)

var (
	symbolRegex   = regexp.MustCompile(`^[A-Za-z0-9&._-]+$`)
	exchangeRegex = regexp.MustCompile(`^[A-Za-z]+$`)
	brokerRegex   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// ValidateStringMaxLength checks if a string's UTF-8 character count is within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d characters", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

// ValidateStringRegex checks if a string matches a given regex pattern.
func ValidateStringRegex(s string, pattern *regexp.Regexp, fieldName, formatDescription string) error {
	if !pattern.MatchString(s) {
		return fmt.Errorf("%w: %s ('%s') is not in the expected format (%s)", ErrValidationFailed, fieldName, s, formatDescription)
	}
	return nil
}

// ValidateSymbol checks a ticker typed by a user. Emptiness is left to the
// row validator so manual entries report the same message as statement rows.
func ValidateSymbol(s string) error {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	if err := ValidateStringMaxLength(trimmed, MaxSymbolLength, "symbol"); err != nil {
		return err
	}
	return ValidateStringRegex(trimmed, symbolRegex, "symbol", "letters, digits and & . _ -")
}

// ValidateExchange checks an optional exchange code such as NSE or BSE.
func ValidateExchange(s string) error {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	if err := ValidateStringMaxLength(trimmed, MaxExchangeLength, "exchange"); err != nil {
		return err
	}
	return ValidateStringRegex(trimmed, exchangeRegex, "exchange", "letters only")
}

// ValidateBrokerCode checks an optional broker code supplied with an upload.
func ValidateBrokerCode(s string) error {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	if err := ValidateStringMaxLength(trimmed, MaxBrokerLength, "broker"); err != nil {
		return err
	}
	return ValidateStringRegex(trimmed, brokerRegex, "broker", "letters, digits, - and _")
}
