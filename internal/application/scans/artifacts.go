package scans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	domain "github.com/bryanwahyu/compliance-pulse/internal/domain/scans"
)

// writeArtifacts stores the scan dump, the JSON report and every configured
// rendering, then back-fills their locations.
func (e *Executor) writeArtifacts(ctx context.Context, scan *domain.Scan, report *domain.Report, results []domain.Result) error {
	if e.Artifacts == nil {
		return nil
	}

	doc := domain.ScanDocument{Scan: scan, Results: results}
	if e.Host != nil {
		if facts, err := e.Host.Facts(ctx); err == nil {
			doc.Host = &facts
		} else {
			e.logger().Warn("host facts unavailable", "error", err)
		}
	}
	scanJSON, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode scan dump: %w", err)
	}
	scanPath, err := e.Artifacts.Put(ctx, e.artifactKey("scans", "scan_"+string(scan.ID)+".json"), "application/json", scanJSON)
	if err != nil {
		return fmt.Errorf("store scan dump: %w", err)
	}
	scan.OutputPath = scanPath

	rdoc := domain.ReportDocument{Report: report, Scan: scan, Results: results}
	reportJSON, err := json.MarshalIndent(rdoc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	reportPath, err := e.Artifacts.Put(ctx, e.artifactKey("reports", "report_"+report.ID+".json"), "application/json", reportJSON)
	if err != nil {
		return fmt.Errorf("store report: %w", err)
	}
	report.OutputPath = reportPath
	report.Renderings = map[string]string{"json": reportPath}

	var renderErrs []error
	for _, r := range e.Renderers {
		data, err := r.Render(rdoc)
		if err != nil {
			renderErrs = append(renderErrs, fmt.Errorf("render %s: %w", r.Format(), err))
			continue
		}
		loc, err := e.Artifacts.Put(ctx, e.artifactKey("reports", "report_"+report.ID+"."+r.Format()), r.ContentType(), data)
		if err != nil {
			renderErrs = append(renderErrs, fmt.Errorf("store %s: %w", r.Format(), err))
			continue
		}
		report.Renderings[r.Format()] = loc
	}

	if err := e.Repo.SetArtifacts(ctx, scan, report); err != nil {
		return fmt.Errorf("record artifact paths: %w", err)
	}
	return errors.Join(renderErrs...)
}

func (e *Executor) artifactKey(kind, name string) string {
	return path.Join(e.OrganizationID, kind, name)
}
