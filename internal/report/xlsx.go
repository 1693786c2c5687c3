// Package report renders period-analysis spreadsheets for download.
package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// SeriesRequest is the series to render: parallel label/value slices plus
// presentation metadata.
type SeriesRequest struct {
	Title  string    `json:"title"`
	Metric string    `json:"metric"`
	Series string    `json:"series"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// BuildXLSX renders the series as a worksheet with a line chart and
// returns the encoded workbook.
func BuildXLSX(req SeriesRequest) (*bytes.Buffer, error) {
	if req.Title == "" {
		req.Title = "Period Analysis"
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Data"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	if err := f.SetCellValue(sheet, "A1", "Date"); err != nil {
		return nil, err
	}
	if err := f.SetCellValue(sheet, "B1", "Value"); err != nil {
		return nil, err
	}

	n := len(req.Labels)
	if len(req.Values) < n {
		n = len(req.Values)
	}
	for i := 0; i < n; i++ {
		row := i + 2
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", row), req.Labels[i]); err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", row), req.Values[i]); err != nil {
			return nil, err
		}
	}

	if n > 0 {
		chart := &excelize.Chart{
			Type: excelize.Line,
			Series: []excelize.ChartSeries{{
				Name:       fmt.Sprintf("%s (%s/%s)", req.Title, req.Metric, req.Series),
				Categories: fmt.Sprintf("%s!$A$2:$A$%d", sheet, n+1),
				Values:     fmt.Sprintf("%s!$B$2:$B$%d", sheet, n+1),
			}},
			Title: []excelize.RichTextRun{{Text: req.Title}},
			XAxis: excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: "Date"}}},
			YAxis: excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: "Value"}}},
			Dimension: excelize.ChartDimension{
				Width:  672,
				Height: 348,
			},
		}
		if err := f.AddChart(sheet, "D2", chart); err != nil {
			return nil, fmt.Errorf("add chart: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf, nil
}
