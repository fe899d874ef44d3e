package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents network-related errors
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeParsing represents HTML/JSON parsing errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeExtraction represents errors where every extraction strategy failed
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeBotDetection represents 403/CAPTCHA anti-bot signals
	ErrorTypeBotDetection ErrorType = "bot_detection"
	// ErrorTypeValidation represents record validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypePersistence represents output/checkpoint write errors
	ErrorTypePersistence ErrorType = "persistence"
)

// ScrapeError represents a scraper-specific error
type ScrapeError struct {
	Type    ErrorType
	Site    string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Site, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Site, e.Message)
}

// Unwrap returns the underlying error
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error should be retried as-is
func (e *ScrapeError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork:
		return true
	case ErrorTypeRateLimit:
		return false
	case ErrorTypeBotDetection:
		// Retried only after the caller rotates identity and backs off
		return false
	default:
		return false
	}
}

// IsBotDetection returns true for 403/CAPTCHA class errors, which require
// fingerprint/proxy rotation before any retry attempt
func (e *ScrapeError) IsBotDetection() bool {
	return e.Type == ErrorTypeBotDetection
}

// New creates a new ScrapeError
func New(errType ErrorType, site, message string, err error) *ScrapeError {
	return &ScrapeError{
		Type:    errType,
		Site:    site,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(site, message string, err error) *ScrapeError {
	return New(ErrorTypeNetwork, site, message, err)
}

// NewParsing creates a new parsing error
func NewParsing(site, message string, err error) *ScrapeError {
	return New(ErrorTypeParsing, site, message, err)
}

// NewExtraction creates a new extraction error
func NewExtraction(site, message string) *ScrapeError {
	return New(ErrorTypeExtraction, site, message, nil)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(site string, retryAfter time.Duration) *ScrapeError {
	message := fmt.Sprintf("rate limited; retry after %v", retryAfter)
	return New(ErrorTypeRateLimit, site, message, nil)
}

// NewBotDetection creates a new bot-detection error
func NewBotDetection(site, message string) *ScrapeError {
	return New(ErrorTypeBotDetection, site, message, nil)
}

// NewValidation creates a new validation error
func NewValidation(site, message string) *ScrapeError {
	return New(ErrorTypeValidation, site, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *ScrapeError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// NewPersistence creates a new persistence error
func NewPersistence(site, message string, err error) *ScrapeError {
	return New(ErrorTypePersistence, site, message, err)
}
