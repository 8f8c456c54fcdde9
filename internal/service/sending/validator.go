package sending

import (
	"regexp"
	"strings"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/pkg/logger"
)

// ReasonInvalidAddress is the error recorded for addresses rejected before send.
const ReasonInvalidAddress = "Invalid email address"

// Spreadsheet exports routinely carry zero-width and non-breaking characters.
var invisibleChars = strings.NewReplacer(
	"\u200b", "", // zero width space
	"\u200c", "", // zero width non-joiner
	"\u200d", "", // zero width joiner
	"\u2060", "", // word joiner
	"\ufeff", "", // byte order mark
	"\u00a0", "", // no-break space
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// CleanEmail strips invisible characters and surrounding whitespace.
func CleanEmail(raw string) string {
	return strings.TrimSpace(invisibleChars.Replace(raw))
}

// ValidateEmail applies a permissive local@domain.tld check.
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// Batch is the validator's partition of a raw recipient list.
type Batch struct {
	Valid    []string
	Rejected []domain.EmailSendResult
}

// ProcessBatch cleans every address and splits the list into sendable
// addresses and rejected results. Input order is kept in both halves.
func ProcessBatch(emails []string) Batch {
	var b Batch
	for _, raw := range emails {
		cleaned := CleanEmail(raw)
		if cleaned != raw && cleaned != strings.TrimSpace(raw) {
			logger.Warn("recipient address contained invisible characters",
				"domain", logger.EmailDomain(cleaned))
		}
		if !ValidateEmail(cleaned) {
			b.Rejected = append(b.Rejected, domain.Rejected(raw, ReasonInvalidAddress))
			continue
		}
		b.Valid = append(b.Valid, cleaned)
	}
	return b
}
