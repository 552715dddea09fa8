package usecase

import (
	"crypto/subtle"
	"net/netip"
	"strings"
)

// Verdict reasons.
const (
	ReasonVerified            = "verified"
	ReasonUnverifiedPermitted = "unverified_permitted"
	ReasonSecretMismatch      = "secret_mismatch"
	ReasonIPMissing           = "ip_missing"
	ReasonIPNotAllowed        = "ip_not_allowed"
	ReasonNoVerification      = "no_verification_strict"
)

// CallbackPolicy is the operator-configured trust policy for gateway callbacks.
// Allowlist entries are single addresses or CIDR prefixes.
type CallbackPolicy struct {
	Secret     string
	AllowedIPs []string
	Strict     bool
}

// CallbackSource is what an inbound callback request presents.
type CallbackSource struct {
	PresentedSecret string
	ForwardedFor    string // raw X-Forwarded-For
	RealIP          string // raw X-Real-IP
}

type Verdict struct {
	Trusted  bool
	Reason   string
	SourceIP string
}

type CallbackVerifier struct {
	secret   []byte
	allowed  []netip.Prefix
	hasAllow bool
	strict   bool
}

func NewCallbackVerifier(p CallbackPolicy) *CallbackVerifier {
	v := &CallbackVerifier{secret: []byte(p.Secret), strict: p.Strict}
	for _, raw := range p.AllowedIPs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		v.hasAllow = true
		if pfx, err := netip.ParsePrefix(raw); err == nil {
			v.allowed = append(v.allowed, pfx.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(raw); err == nil {
			v.allowed = append(v.allowed, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
		}
	}
	return v
}

// SourceIP picks the first X-Forwarded-For entry, else X-Real-IP.
func SourceIP(forwardedFor, realIP string) string {
	if first, _, _ := strings.Cut(forwardedFor, ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	return strings.TrimSpace(realIP)
}

// Verify applies the policy in order: shared secret, then IP allowlist, then
// strict mode when neither control is configured.
func (v *CallbackVerifier) Verify(src CallbackSource) Verdict {
	ip := SourceIP(src.ForwardedFor, src.RealIP)
	hasSecret := len(v.secret) > 0

	if hasSecret && subtle.ConstantTimeCompare(v.secret, []byte(src.PresentedSecret)) != 1 {
		return Verdict{Reason: ReasonSecretMismatch, SourceIP: ip}
	}
	if v.hasAllow {
		if ip == "" {
			return Verdict{Reason: ReasonIPMissing, SourceIP: ip}
		}
		if !v.ipAllowed(ip) {
			return Verdict{Reason: ReasonIPNotAllowed, SourceIP: ip}
		}
	}
	if !hasSecret && !v.hasAllow {
		if v.strict {
			return Verdict{Reason: ReasonNoVerification, SourceIP: ip}
		}
		return Verdict{Trusted: true, Reason: ReasonUnverifiedPermitted, SourceIP: ip}
	}
	return Verdict{Trusted: true, Reason: ReasonVerified, SourceIP: ip}
}

func (v *CallbackVerifier) ipAllowed(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range v.allowed {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
