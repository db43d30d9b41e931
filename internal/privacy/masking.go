package privacy

import (
	"strings"
)

// MaskUserID masks a user identifier
// Example: "user123456" -> "******3456"
func MaskUserID(userID string) string {
	return maskString(userID, 4)
}

// MaskToken hides a bearer token entirely except for its length class.
// Example: "s3cr3t-token-value" -> "****alue"
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return "****" + token[len(token)-4:]
}

// MaskAuthorization masks the credential of an Authorization header value
// while keeping its scheme.
// Example: "Bearer abcdefghijkl" -> "Bearer ****ijkl"
func MaskAuthorization(value string) string {
	scheme, credential, ok := strings.Cut(value, " ")
	if !ok {
		return MaskToken(value)
	}
	return scheme + " " + MaskToken(credential)
}

// MaskFileName keeps the extension of an uploaded file and hides the rest.
// Example: "transcript-ada.pdf" -> "**************.pdf"
func MaskFileName(name string) string {
	if name == "" {
		return ""
	}
	dot := strings.LastIndex(name, ".")
	if dot <= 0 {
		return maskString(name, 0)
	}
	return strings.Repeat("*", dot) + name[dot:]
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, isString := v.(string)
		if !isString {
			masked[k] = v
			continue
		}
		switch k {
		case "user_id", "userId", "author_id", "owner_id", "creator_id":
			masked[k] = MaskUserID(s)
		case "token", "api_token":
			masked[k] = MaskToken(s)
		case "authorization", "Authorization":
			masked[k] = MaskAuthorization(s)
		case "file_name", "filename":
			masked[k] = MaskFileName(s)
		default:
			masked[k] = v
		}
	}

	return masked
}
