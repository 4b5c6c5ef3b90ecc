package render

import (
	"fmt"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/scans"
)

// ForFormats returns renderers for the extra report formats. json is always
// written by the executor and is accepted here as a no-op.
func ForFormats(formats []string) ([]scans.Renderer, error) {
	var out []scans.Renderer
	for _, f := range formats {
		switch f {
		case "json":
		case "html":
			out = append(out, HTML{})
		case "pdf":
			out = append(out, PDF{})
		default:
			return nil, fmt.Errorf("unknown report format %q", f)
		}
	}
	return out, nil
}
