package protect

// RuleKind selects which protection rule evaluates a request.
type RuleKind uint8

// RuleUnknown is the zero kind, reported when a request timed out or failed
// before classification finished.
const (
	RuleUnknown RuleKind = iota
	RuleRateLimit
	RuleEmailValidation
	RuleShield
)

func (k RuleKind) String() string {
	switch k {
	case RuleRateLimit:
		return "rate_limit"
	case RuleEmailValidation:
		return "email_validation"
	case RuleShield:
		return "shield"
	default:
		return "unknown"
	}
}

// Rule is the classifier's selection. Email is set for RuleEmailValidation,
// Fingerprint for RuleRateLimit.
type Rule struct {
	Kind        RuleKind
	Email       string
	Fingerprint string
}

// EmailValidation selects the email check for email.
func EmailValidation(email string) Rule {
	return Rule{Kind: RuleEmailValidation, Email: email}
}

// ShieldValidation selects the request heuristics.
func ShieldValidation() Rule {
	return Rule{Kind: RuleShield}
}

// RateLimit selects the sliding window keyed by fingerprint.
func RateLimit(fingerprint string) Rule {
	return Rule{Kind: RuleRateLimit, Fingerprint: fingerprint}
}
