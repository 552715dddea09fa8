package model

import (
	"strings"

	"sme-compliance/internal/domain"
)

// NormalizeKenyanPhone converts a local (07XX..., 01XX...) or international
// (2547XX..., 2541XX...) mobile number to the 12-digit MSISDN form M-Pesa expects.
// A leading '+' and spaces or dashes are tolerated; any other form is rejected.
func NormalizeKenyanPhone(in string) (string, error) {
	s := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(in))
	s = strings.TrimPrefix(s, "+")
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", domain.ErrInvalidPhone
		}
	}

	var subscriber string
	switch {
	case len(s) == 10 && s[0] == '0':
		subscriber = s[1:]
	case len(s) == 12 && strings.HasPrefix(s, "254"):
		subscriber = s[3:]
	default:
		return "", domain.ErrInvalidPhone
	}
	if subscriber[0] != '7' && subscriber[0] != '1' {
		return "", domain.ErrInvalidPhone
	}
	return "254" + subscriber, nil
}
