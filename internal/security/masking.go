// Package security provides credential masking, audit logging, and read-only
// access control.
package security

import (
	"regexp"
	"strings"
)

// sensitiveFields contains field names that should be masked in logs.
var sensitiveFields = map[string]bool{
	"consumer_key":  true,
	"consumerkey":   true,
	"mpin":          true,
	"totp":          true,
	"totp_secret":   true,
	"secret":        true,
	"password":      true,
	"token":         true,
	"auth":          true,
	"sid":           true,
	"access_token":  true,
	"authorization": true,
	"credential":    true,
	"credentials":   true,
}

// sensitivePatterns matches key/value pairs carrying credentials.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(consumer[_-]?key|mpin|totp[_-]?secret|totp|access[_-]?token|auth|sid|token|password|authorization)"?\s*[=:]\s*["']?([^\s"',}]+)["']?`),
}

// jwtPattern matches the bearer tokens the Neo API issues.
var jwtPattern = regexp.MustCompile(`eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}`)

// MaskCredential masks a credential value for logging.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// MaskMobile keeps the last four digits of a mobile number.
func MaskMobile(mobile string) string {
	if len(mobile) <= 4 {
		return strings.Repeat("*", len(mobile))
	}
	return strings.Repeat("*", len(mobile)-4) + mobile[len(mobile)-4:]
}

// MaskSensitive masks credential pairs and tokens embedded in a string.
func MaskSensitive(input string) string {
	result := jwtPattern.ReplaceAllStringFunc(input, MaskCredential)

	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			sub := pattern.FindStringSubmatch(match)
			if len(sub) < 3 || sub[2] == "" {
				return match
			}
			return strings.Replace(match, sub[2], MaskCredential(sub[2]), 1)
		})
	}

	return result
}

// isSensitiveField checks if a field name is sensitive.
func isSensitiveField(field string) bool {
	return sensitiveFields[strings.ToLower(field)]
}

// LogWithoutCredentials creates a copy of a map with credentials masked.
func LogWithoutCredentials(data map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for k, v := range data {
		if isSensitiveField(k) {
			if strVal, ok := v.(string); ok {
				result[k] = MaskCredential(strVal)
			} else {
				result[k] = "***"
			}
		} else if strVal, ok := v.(string); ok {
			result[k] = MaskSensitive(strVal)
		} else {
			result[k] = v
		}
	}
	return result
}
