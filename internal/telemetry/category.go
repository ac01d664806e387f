package telemetry

// Category is one of the fixed connection-establishment phases.
type Category int

const (
	ConnectionSetup Category = iota
	DNSLookup
	SocketConnect
	TLSHandshake
)

// Categories lists every category in report order.
var Categories = [...]Category{ConnectionSetup, DNSLookup, SocketConnect, TLSHandshake}

// Source identifiers are the tracer (instrumentation scope) names the
// instrumented dialer uses. They are part of the public contract and must
// stay stable across runs.
const (
	SourceConnection = "connprobe.net.connection"
	SourceDNS        = "connprobe.net.dns"
	SourceSocket     = "connprobe.net.socket"
	SourceTLS        = "connprobe.net.tls"
)

var sourceCategories = map[string]Category{
	SourceConnection: ConnectionSetup,
	SourceDNS:        DNSLookup,
	SourceSocket:     SocketConnect,
	SourceTLS:        TLSHandshake,
}

// Lookup returns the category registered for sourceID.
func Lookup(sourceID string) (Category, bool) {
	c, ok := sourceCategories[sourceID]
	return c, ok
}

// Source returns the source identifier of c.
func (c Category) Source() string {
	switch c {
	case ConnectionSetup:
		return SourceConnection
	case DNSLookup:
		return SourceDNS
	case SocketConnect:
		return SourceSocket
	case TLSHandshake:
		return SourceTLS
	}
	return ""
}

// String returns the report field name of c.
func (c Category) String() string {
	switch c {
	case ConnectionSetup:
		return "connectionSetup"
	case DNSLookup:
		return "dnsLookup"
	case SocketConnect:
		return "socketConnect"
	case TLSHandshake:
		return "tlsHandshake"
	}
	return "unknown"
}

// Outcome is the result of a completed phase.
type Outcome int

const (
	Success Outcome = iota
	Failure
)

func (o Outcome) String() string {
	if o == Failure {
		return "failure"
	}
	return "success"
}
