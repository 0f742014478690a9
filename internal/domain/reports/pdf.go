package reports

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CampaignReportPDF renders a certification campaign as a printable report:
// header, headline statistics, decision breakdown and per-reviewer progress.
func (s *Service) CampaignReportPDF(ctx context.Context, orgID, campaignID string) ([]byte, error) {
	c, err := s.Campaigns.Get(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	stats, err := s.Campaigns.GetStats(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	reviewers, err := s.Campaigns.ReviewerProgress(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Access Certification Report", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Access Certification Report")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, c.Name)
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Type: %s    Status: %s", c.Type, c.Status))
	pdf.Ln(6)
	if c.LaunchedAt != nil {
		pdf.Cell(0, 6, "Launched: "+c.LaunchedAt.Format("2006-01-02"))
		pdf.Ln(6)
	}
	if c.EndDate != nil {
		pdf.Cell(0, 6, "Deadline: "+c.EndDate.Format("2006-01-02"))
		pdf.Ln(6)
	}
	pdf.Cell(0, 6, "Generated: "+time.Now().Format("2006-01-02 15:04 MST"))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 10)
	summary := [][2]string{
		{"Total reviews", fmt.Sprintf("%d", stats.TotalReviews)},
		{"Completed", fmt.Sprintf("%d (%.2f%%)", stats.CompletedReviews, stats.ProgressPct)},
		{"Approved", fmt.Sprintf("%d", stats.Approved)},
		{"Revoked", fmt.Sprintf("%d", stats.Revoked)},
		{"Exceptions", fmt.Sprintf("%d", stats.Exceptions)},
		{"Delegated", fmt.Sprintf("%d", stats.Delegated)},
		{"Pending", fmt.Sprintf("%d", stats.Pending)},
		{"Flagged for SOD", fmt.Sprintf("%d", stats.Flagged)},
	}
	for _, row := range summary {
		pdf.CellFormat(60, 6, row[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(60, 6, row[1], "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Reviewer Progress")
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(70, 7, "Reviewer", "1", 0, "L", false, 0, "")
	pdf.CellFormat(30, 7, "Assigned", "1", 0, "R", false, 0, "")
	pdf.CellFormat(30, 7, "Completed", "1", 0, "R", false, 0, "")
	pdf.CellFormat(30, 7, "Progress", "1", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	for _, r := range reviewers {
		name := r.ReviewerName
		if name == "" {
			name = r.ReviewerEmail
		}
		pdf.CellFormat(70, 7, name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 7, fmt.Sprintf("%d", r.TotalItems), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 7, fmt.Sprintf("%d", r.CompletedItems), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 7, fmt.Sprintf("%.2f%%", r.ProgressPct), "1", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
