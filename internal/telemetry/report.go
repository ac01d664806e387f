package telemetry

// PhaseStats summarizes the samples of one category, in milliseconds.
type PhaseStats struct {
	Count   int     `json:"count" yaml:"count"`
	P50     float64 `json:"p50" yaml:"p50"`
	P95     float64 `json:"p95" yaml:"p95"`
	P99     float64 `json:"p99" yaml:"p99"`
	Max     float64 `json:"max" yaml:"max"`
	Mean    float64 `json:"mean" yaml:"mean"`
	Success int64   `json:"success" yaml:"success"`
	Failure int64   `json:"failure" yaml:"failure"`
}

// ConnectionSetupStats adds the threshold crossing count to PhaseStats.
type ConnectionSetupStats struct {
	PhaseStats `yaml:",inline"`
	Over500ms  int `json:"over500ms" yaml:"over500ms"`
}

// Report is the externally visible aggregate. It is never stored.
type Report struct {
	RuntimeVersion            string               `json:"runtimeVersion" yaml:"runtimeVersion"`
	CollectionDurationMinutes float64              `json:"collectionDurationMinutes" yaml:"collectionDurationMinutes"`
	Unit                      string               `json:"unit" yaml:"unit"`
	ConnectionSetup           ConnectionSetupStats `json:"connectionSetup" yaml:"connectionSetup"`
	DNSLookup                 PhaseStats           `json:"dnsLookup" yaml:"dnsLookup"`
	SocketConnect             PhaseStats           `json:"socketConnect" yaml:"socketConnect"`
	TLSHandshake              PhaseStats           `json:"tlsHandshake" yaml:"tlsHandshake"`
}

// Phase returns the stats of c.
func (r Report) Phase(c Category) PhaseStats {
	switch c {
	case ConnectionSetup:
		return r.ConnectionSetup.PhaseStats
	case DNSLookup:
		return r.DNSLookup
	case SocketConnect:
		return r.SocketConnect
	case TLSHandshake:
		return r.TLSHandshake
	}
	return PhaseStats{}
}
