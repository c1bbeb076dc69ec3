package infra

// pdf.go renders the roast report for a finished batch: a summary table
// followed by the temperature curve with the first-crack point marked.

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"roastkit/internal/model"

	"github.com/go-pdf/fpdf"
)

const (
	chartX = 20.0
	chartW = 170.0
	chartH = 90.0
)

// GenerateRoastReportPDF writes storagePath/roast_{id}.pdf and returns its path.
// batch must carry BeanVariety, Roaster and Logs ordered by time index.
func GenerateRoastReportPDF(batch *model.RoastBatch, storagePath string) (string, error) {
	if err := os.MkdirAll(storagePath, 0o755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}
	filePath := filepath.Join(storagePath, fmt.Sprintf("roast_%s.pdf", batch.ID))

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(20, 15, 20)
	pdf.AddPage()

	variety, roaster := "-", "-"
	if batch.BeanVariety != nil {
		variety = batch.BeanVariety.Name
	}
	if batch.Roaster != nil {
		roaster = batch.Roaster.FullName
	}

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, tr("Roast Report: "+variety), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5, fmt.Sprintf("Batch #%d  -  %s", batch.BatchNumber, batch.CreatedAt.Format("02 Jan 2006 15:04")), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	rows := [][2]string{
		{"Roaster", roaster},
		{"Green weight", fmt.Sprintf("%d g", batch.InitialWeight)},
		{"Estimated yield", fmt.Sprintf("%d g", batch.EstimatedYield)},
		{"Actual yield", optInt(batch.ActualYield, " g")},
		{"Drop time", optString(batch.FinalTime)},
		{"Drop temperature", optInt(batch.FinalTemp, " C")},
		{"Target profile", optString(batch.TargetProfile)},
		{"Density", "-"},
		{"Cupping score", optInt(batch.CuppingScore, "")},
		{"Approved", optBool(batch.IsApproved)},
	}
	if batch.Density != nil {
		rows[7][1] = batch.Density.StringFixed(2) + " g/L"
	}
	if fc := batch.FirstCrack(); fc != nil {
		rows = append(rows, [2]string{"First crack", fmt.Sprintf("%s at %.0f C", clock(fc.TimeIndex), fc.Temperature)})
	}

	for _, r := range rows {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(45, 6, r[0], "B", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 6, tr(r[1]), "B", 1, "L", false, 0, "")
	}
	if batch.SensoryNotes != nil && *batch.SensoryNotes != "" {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, tr(*batch.SensoryNotes), "", "L", false)
	}

	pdf.Ln(6)
	drawCurve(pdf, batch, pdf.GetY())

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}
	return filePath, nil
}

func drawCurve(pdf *fpdf.Fpdf, batch *model.RoastBatch, top float64) {
	pdf.SetDrawColor(120, 120, 120)
	pdf.SetLineWidth(0.2)
	pdf.Rect(chartX, top, chartW, chartH, "D")

	if len(batch.Logs) < 2 {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.Text(chartX+4, top+chartH/2, "Not enough telemetry to plot a curve")
		return
	}

	maxT := float64(batch.Logs[len(batch.Logs)-1].TimeIndex)
	if maxT <= 0 {
		maxT = 1
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, l := range batch.Logs {
		lo = math.Min(lo, l.Temperature)
		hi = math.Max(hi, l.Temperature)
	}
	lo = math.Floor(lo/10)*10 - 10
	hi = math.Ceil(hi/10)*10 + 10

	px := func(t int) float64 { return chartX + float64(t)/maxT*chartW }
	py := func(temp float64) float64 { return top + chartH - (temp-lo)/(hi-lo)*chartH }

	pdf.SetFont("Helvetica", "", 7)
	for temp := lo; temp <= hi; temp += 20 {
		pdf.SetDrawColor(225, 225, 225)
		pdf.Line(chartX, py(temp), chartX+chartW, py(temp))
		pdf.Text(chartX-9, py(temp)+1, strconv.Itoa(int(temp)))
	}
	pdf.Text(chartX, top+chartH+5, "0:00")
	pdf.Text(chartX+chartW-8, top+chartH+5, clock(int(maxT)))

	pdf.SetDrawColor(160, 60, 20)
	pdf.SetLineWidth(0.6)
	for i := 1; i < len(batch.Logs); i++ {
		a, b := batch.Logs[i-1], batch.Logs[i]
		pdf.Line(px(a.TimeIndex), py(a.Temperature), px(b.TimeIndex), py(b.Temperature))
	}

	if fc := batch.FirstCrack(); fc != nil {
		pdf.SetFillColor(200, 30, 30)
		pdf.Circle(px(fc.TimeIndex), py(fc.Temperature), 1.2, "F")
		pdf.SetFont("Helvetica", "B", 7)
		pdf.Text(px(fc.TimeIndex)+2, py(fc.Temperature)-2, "FC")
	}
}

func clock(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func optInt(v *int, unit string) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v) + unit
}

func optString(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}

func optBool(v *bool) string {
	if v == nil {
		return "pending"
	}
	if *v {
		return "yes"
	}
	return "no"
}
