package export

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"chatbook/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Bookings"

var headers = []string{"ID", "Service", "Customer", "Email", "Phone", "Date", "Start", "End", "Timezone", "Status", "Created"}

// BookingsWorkbook пишет по одной строке на бронирование. Время показывается
// в часовом поясе бронирования, если он известен, иначе в loc.
func BookingsWorkbook(bookings []*models.Booking, loc *time.Location) (*bytes.Buffer, error) {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	cancelledStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F8CBAD"}, Pattern: 1},
	})

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.SetCellStyle(sheetName, "A1", lastCol+"1", headerStyle)

	sorted := append([]*models.Booking(nil), bookings...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	row := 2
	for _, b := range sorted {
		if b == nil {
			continue
		}
		bl := bookingLocation(b, loc)
		start := b.Start.In(bl)
		values := []interface{}{
			b.ID,
			b.ServiceName,
			b.CustomerName,
			b.CustomerEmail,
			b.CustomerPhone,
			start.Format("2006-01-02"),
			start.Format("15:04"),
			b.End.In(bl).Format("15:04"),
			bl.String(),
			b.Status,
			b.CreatedAt.In(loc).Format("2006-01-02 15:04"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("error writing row %d: %w", row, err)
		}
		if b.Status == models.StatusCancelled {
			end, _ := excelize.CoordinatesToCellName(len(headers), row)
			_ = f.SetCellStyle(sheetName, cell, end, cancelledStyle)
		}
		row++
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "E", 22)
	_ = f.SetColWidth(sheetName, "F", lastCol, 14)
	_ = f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("error writing workbook: %w", err)
	}
	return buf, nil
}

func bookingLocation(b *models.Booking, fallback *time.Location) *time.Location {
	if b.Timezone == "" {
		return fallback
	}
	if loc, err := time.LoadLocation(b.Timezone); err == nil {
		return loc
	}
	return fallback
}
