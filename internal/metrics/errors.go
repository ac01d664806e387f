package metrics

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
	"unicode"
)

// typeLabels names error types that live in probe client packages. They are
// matched by type name so this package stays free of client imports.
var typeLabels = map[string]string{
	"probe.StatusError":      "HTTP error response",
	"probe.ExpectationError": "Unexpected response body",
	"probe.NotServingError":  "Service not serving",
	"status.Error":           "gRPC status error",
	"proto.RedisError":       "Redis error",
	"url.Error":              "Request URL error",
	"net.OpError":            "Network error",
	"net.DNSError":           "DNS lookup error",
	"net.AddrError":          "Address error",
}

// ErrorLabel groups err by the connection phase or protocol layer that
// failed. Standard library errors are found anywhere in the chain; anything
// else is labelled by the outermost type that is not a plain wrapper.
func ErrorLabel(err error) string {
	if err == nil {
		return ""
	}
	var (
		dnsErr   *net.DNSError
		certErr  *tls.CertificateVerificationError
		unknown  x509.UnknownAuthorityError
		hostErr  x509.HostnameError
		alertErr tls.AlertError
		recErr   tls.RecordHeaderError
		opErr    *net.OpError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Context deadline exceeded"
	case errors.Is(err, context.Canceled):
		return "Context canceled"
	case errors.As(err, &dnsErr):
		return "DNS lookup error"
	case errors.As(err, &certErr), errors.As(err, &unknown), errors.As(err, &hostErr):
		return "TLS certificate error"
	case errors.As(err, &alertErr):
		return "TLS alert"
	case errors.As(err, &recErr):
		return "TLS record error"
	case errors.As(err, &opErr):
		return "Network error"
	}
	return FriendlyErrorName(fmt.Sprintf("%T", unwrapPlain(err)))
}

// unwrapPlain strips fmt and errors.Join wrappers, following the first
// branch of a join.
func unwrapPlain(err error) error {
	for {
		switch fmt.Sprintf("%T", err) {
		case "*fmt.wrapError", "*fmt.wrapErrors", "*errors.joinError", "*url.Error":
		default:
			return err
		}
		var next error
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			next = u.Unwrap()
		case interface{ Unwrap() []error }:
			if errs := u.Unwrap(); len(errs) > 0 {
				next = errs[0]
			}
		}
		if next == nil {
			return err
		}
		err = next
	}
}

// FriendlyErrorName turns a %T type name such as "*github.com/acme/db.TLSConfigError"
// into a label like "TLS Config Error (db)".
func FriendlyErrorName(typeName string) string {
	name := strings.TrimPrefix(strings.TrimSpace(typeName), "*")
	if name == "" {
		return "Unknown error"
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if label, ok := typeLabels[name]; ok {
		return label
	}

	pkg, typ, found := strings.Cut(name, ".")
	if !found {
		pkg, typ = "", name
	}
	words := splitWords(typ)
	if pkg == "" || pkg == "main" {
		return words
	}
	return fmt.Sprintf("%s (%s)", words, pkg)
}

// splitWords breaks a Go identifier at case and digit boundaries and
// capitalizes each word. Acronyms stay upper case.
func splitWords(ident string) string {
	runes := []rune(ident)
	var b strings.Builder
	start := 0
	flush := func(end int) {
		if end <= start {
			return
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		word := string(runes[start:end])
		if strings.ToUpper(word) == word {
			b.WriteString(word)
		} else {
			lower := []rune(strings.ToLower(word))
			lower[0] = unicode.ToUpper(lower[0])
			b.WriteString(string(lower))
		}
		start = end
	}
	for i := 1; i < len(runes); i++ {
		prev, r := runes[i-1], runes[i]
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		switch {
		case unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev)):
			flush(i)
		case unicode.IsUpper(r) && unicode.IsUpper(prev) && nextLower:
			flush(i)
		case unicode.IsDigit(r) && !unicode.IsDigit(prev):
			flush(i)
		}
	}
	flush(len(runes))
	return b.String()
}
