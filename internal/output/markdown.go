package output

import (
	"time"

	"github.com/ev119/erlocator/internal/core"
	"github.com/ev119/erlocator/internal/core/engine"
	"github.com/ev119/erlocator/internal/core/quota"
)

// MarkdownFormatter renders results as GitHub-flavored markdown tables.
type MarkdownFormatter struct{}

// FormatFacilities renders facilities as a markdown table.
func (f *MarkdownFormatter) FormatFacilities(list *core.FacilityList, report *engine.MergeReport) (string, error) {
	if list == nil {
		return "", nil
	}
	return facilityTable(list, report).RenderMarkdown(), nil
}

// FormatBlocks renders quota blocks as a markdown table.
func (f *MarkdownFormatter) FormatBlocks(blocks []quota.Block, now time.Time) (string, error) {
	return blockTable(blocks, now).RenderMarkdown(), nil
}
