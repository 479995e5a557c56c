// Package pii detects personal and sensitive entities in text and applies
// a configured redact/pseudonymize/mask policy, generalizing the teacher's
// pkg/masking (compiled regex patterns + pluggable code-based maskers) from
// Kubernetes-secret masking to the full entity catalog in §4.3.
package pii

import "regexp"

// EntityType names one recognized kind of sensitive data.
type EntityType string

const (
	TypeEmail         EntityType = "EMAIL"
	TypePhone         EntityType = "PHONE"
	TypeSSN           EntityType = "SSN"
	TypeCreditCard    EntityType = "CREDIT_CARD"
	TypeIPv4          EntityType = "IPV4"
	TypeAPIKey        EntityType = "API_KEY"
	TypeUUID          EntityType = "UUID"
	TypeURL           EntityType = "URL"
	TypeWindowsPath   EntityType = "WINDOWS_PATH"
	TypeCloudKey      EntityType = "CLOUD_ACCESS_KEY"
	TypePrivateKey    EntityType = "PRIVATE_KEY"
	TypeEmployeeID    EntityType = "EMPLOYEE_ID"
	TypeTicketID      EntityType = "TICKET_ID"
	TypeServerName    EntityType = "SERVER_NAME"
	TypeDBName        EntityType = "DB_NAME"
	TypePerson        EntityType = "PERSON"
	TypeLocation      EntityType = "LOCATION"
	TypeDate          EntityType = "DATE"
)

// Pattern pairs a compiled regex with the entity type it recognizes and a
// confidence score used when reporting detections (NER-augmented types
// carry a lower built-in confidence than anchored regexes).
type Pattern struct {
	Type       EntityType
	Regex      *regexp.Regexp
	Confidence float64
}

// builtinPatterns is the default regex catalog from §4.3. Overlapping spans
// are resolved by Confidence (see dedupeOverlaps), so more specific patterns
// (credit card, SSN) carry a higher confidence than broader ones (generic
// API key).
func builtinPatterns() []Pattern {
	return []Pattern{
		{TypeEmail, regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), 0.95},
		{TypeSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), 0.9},
		{TypeCreditCard, regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`), 0.75},
		{TypePhone, regexp.MustCompile(`\b(?:\+?\d{1,2}[ .\-]?)?\(?\d{3}\)?[ .\-]?\d{3}[ .\-]?\d{4}\b`), 0.8},
		{TypeIPv4, regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|[01]?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|[01]?\d?\d)\b`), 0.9},
		{TypeCloudKey, regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), 0.95},
		{TypePrivateKey, regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH )?PRIVATE KEY-----`), 0.99},
		{TypeUUID, regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`), 0.85},
		{TypeURL, regexp.MustCompile(`\bhttps?://[^\s"'<>]+`), 0.8},
		{TypeWindowsPath, regexp.MustCompile(`\b[A-Za-z]:\\(?:[^\\/:*?"<>|\r\n]+\\)*[^\\/:*?"<>|\r\n]*`), 0.7},
		{TypeAPIKey, regexp.MustCompile(`\b[A-Za-z0-9_\-]{32,}\b`), 0.55},
		{TypeEmployeeID, regexp.MustCompile(`\bEMP\d+\b`), 0.9},
		{TypeTicketID, regexp.MustCompile(`\b[A-Z]{2,5}-\d+\b`), 0.9},
		{TypeServerName, regexp.MustCompile(`\b[a-z]+-[a-z]+-\d{2,3}\b`), 0.7},
		{TypeDBName, regexp.MustCompile(`\b[a-z]+_db_[a-z0-9]+\b`), 0.8},
	}
}

// NERProvider is the optional augmentation layer referenced by §4.3: when
// available, it contributes person/location/date entities the regex layer
// cannot express structurally. No built-in implementation ships with the
// core — it is a collaborator the detector accepts, mirroring how the
// vector index and LLM are accepted as opaque remote collaborators.
type NERProvider interface {
	Detect(text string) ([]Detection, error)
}

// Detection is one located match, returned by detect() without mutating
// the input.
type Detection struct {
	Type       EntityType `json:"type"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
	Confidence float64    `json:"confidence"`
	Span       string     `json:"span"`
}
