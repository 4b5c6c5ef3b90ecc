package scans

import "context"

// Repository port (interface untuk persistence)
type Repository interface {
	Create(ctx context.Context, s *Scan) error
	AddResult(ctx context.Context, r *Result) error
	// Complete stores the scan's completion and inserts its report atomically.
	Complete(ctx context.Context, s *Scan, rep *Report) error
	// Fail closes a scan that could not finish.
	Fail(ctx context.Context, s *Scan) error
	SetArtifacts(ctx context.Context, s *Scan, rep *Report) error
	Get(ctx context.Context, organizationID string, id ScanID) (*Scan, error)
	Results(ctx context.Context, organizationID string, id ScanID) ([]Result, error)
	ReportFor(ctx context.Context, organizationID string, id ScanID) (*Report, error)
	Latest(ctx context.Context, organizationID string, limit int) ([]*Scan, error)
}

// ArtifactStore port (interface untuk penyimpanan artefak)
type ArtifactStore interface {
	// Put stores data under key and returns its durable location.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Renderer turns a report document into one output format.
type Renderer interface {
	Format() string
	ContentType() string
	Render(doc ReportDocument) ([]byte, error)
}

// Advisor produces free-form advice for a finished scan.
type Advisor interface {
	Advise(ctx context.Context, s *Scan, results []Result) (string, error)
}

// HostFacts describes the machine the rules ran on.
type HostFacts struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	PlatformFamily  string `json:"platform_family"`
	PlatformVersion string `json:"platform_version"`
	KernelVersion   string `json:"kernel_version"`
}

// HostProber reports facts about the local host.
type HostProber interface {
	Facts(ctx context.Context) (HostFacts, error)
}

// ScanDocument is the JSON dump written per scan.
type ScanDocument struct {
	Scan    *Scan      `json:"scan"`
	Host    *HostFacts `json:"host,omitempty"`
	Results []Result   `json:"results"`
}

// ReportDocument is what renderers and the report artifact consume.
type ReportDocument struct {
	Report  *Report  `json:"report"`
	Scan    *Scan    `json:"scan"`
	Results []Result `json:"results"`
}
