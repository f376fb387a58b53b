package output

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ev119/erlocator/internal/core"
	"github.com/ev119/erlocator/internal/core/engine"
	"github.com/ev119/erlocator/internal/core/quota"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatFacilities renders facilities as a table.
func (f *TableFormatter) FormatFacilities(list *core.FacilityList, report *engine.MergeReport) (string, error) {
	if list == nil {
		return "", nil
	}
	return facilityTable(list, report).Render(), nil
}

// FormatBlocks renders quota blocks as a table.
func (f *TableFormatter) FormatBlocks(blocks []quota.Block, now time.Time) (string, error) {
	return blockTable(blocks, now).Render(), nil
}

func facilityTable(list *core.FacilityList, report *engine.MergeReport) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Name", "Address", "ER Phone", "Distance", "ER Beds", "Ward Beds"})

	for _, item := range list.Items() {
		if item == nil {
			continue
		}
		t.AppendRow(table.Row{
			item.FacilityID,
			item.Name,
			item.Address,
			phoneLabel(item),
			distanceLabel(item.Distance),
			valueOrDash(item.CapacityEmergency),
			valueOrDash(item.CapacityGeneral),
		})
	}

	// One summary cell spanning every column, kept in its original case.
	summary := summaryLine(list, report)
	t.Style().Format.Footer = text.FormatDefault
	t.AppendFooter(
		table.Row{summary, summary, summary, summary, summary, summary, summary},
		table.RowConfig{AutoMerge: true, AutoMergeAlign: text.AlignLeft},
	)
	return t
}

func blockTable(blocks []quota.Block, now time.Time) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Region 1", "Region 2", "Expires", "Remaining"})
	for _, block := range blocks {
		t.AppendRow(table.Row{
			block.Pair.Region1,
			block.Pair.Region2,
			expiresLabel(block),
			remainingLabel(block, now),
		})
	}
	return t
}
