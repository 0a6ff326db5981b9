// Package emailcheck implements the email validation protection rule: syntax,
// disposable-provider and MX-record checks with a configurable block list.
package emailcheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"strings"
)

// Reason names a check that can block an address.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonInvalid     Reason = "INVALID"
	ReasonDisposable  Reason = "DISPOSABLE"
	ReasonNoMXRecords Reason = "NO_MX_RECORDS"
)

// ErrLookupFailed wraps DNS failures other than "no such host".
var ErrLookupFailed = errors.New("mx lookup failed")

// DefaultBlock blocks every reason.
var DefaultBlock = []Reason{ReasonDisposable, ReasonInvalid, ReasonNoMXRecords}

// MXResolver is satisfied by *net.Resolver.
type MXResolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// Result is the outcome of a check. Reason is set whenever a check failed,
// Blocked only when that reason is in the block list.
type Result struct {
	Blocked bool
	Reason  Reason
}

// Validator checks addresses. It is safe for concurrent use.
type Validator struct {
	block      map[Reason]struct{}
	disposable map[string]struct{}
	resolver   MXResolver
}

// Option configures a Validator.
type Option func(*Validator)

// WithResolver replaces the DNS resolver.
func WithResolver(r MXResolver) Option {
	return func(v *Validator) {
		if r != nil {
			v.resolver = r
		}
	}
}

// WithDisposableDomains adds domains to the disposable list.
func WithDisposableDomains(domains ...string) Option {
	return func(v *Validator) {
		for _, d := range domains {
			d = strings.ToLower(strings.TrimSpace(d))
			if d != "" {
				v.disposable[d] = struct{}{}
			}
		}
	}
}

// New creates a Validator blocking the given reasons (DefaultBlock when empty).
func New(block []Reason, opts ...Option) (*Validator, error) {
	if len(block) == 0 {
		block = DefaultBlock
	}
	v := &Validator{
		block:      make(map[Reason]struct{}, len(block)),
		disposable: make(map[string]struct{}, len(builtinDisposable)),
		resolver:   net.DefaultResolver,
	}
	for _, r := range block {
		switch r {
		case ReasonInvalid, ReasonDisposable, ReasonNoMXRecords:
			v.block[r] = struct{}{}
		default:
			return nil, fmt.Errorf("unknown email block reason %q", r)
		}
	}
	for _, d := range builtinDisposable {
		v.disposable[d] = struct{}{}
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Check runs the checks in order: syntax, disposable domain, MX records.
// The first failing check decides the reason.
func (v *Validator) Check(ctx context.Context, email string) (Result, error) {
	domain, ok := parseDomain(email)
	if !ok {
		return v.result(ReasonInvalid), nil
	}
	if _, ok := v.disposable[domain]; ok {
		return v.result(ReasonDisposable), nil
	}
	if _, blocking := v.block[ReasonNoMXRecords]; !blocking {
		return Result{}, nil
	}

	records, err := v.resolver.LookupMX(ctx, domain)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return v.result(ReasonNoMXRecords), nil
		}
		return Result{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	for _, mx := range records {
		// RFC 7505 null MX means the domain accepts no mail.
		if mx != nil && mx.Host != "." && mx.Host != "" {
			return Result{}, nil
		}
	}
	return v.result(ReasonNoMXRecords), nil
}

func (v *Validator) result(reason Reason) Result {
	_, blocked := v.block[reason]
	return Result{Blocked: blocked, Reason: reason}
}

func parseDomain(email string) (string, bool) {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > 254 {
		return "", false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return "", false
	}
	at := strings.LastIndexByte(addr.Address, '@')
	if at <= 0 || at == len(addr.Address)-1 {
		return "", false
	}
	domain := strings.ToLower(addr.Address[at+1:])
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", false
	}
	return domain, true
}
