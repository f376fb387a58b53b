package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/ev119/erlocator/internal/core"
	"github.com/ev119/erlocator/internal/core/engine"
	"github.com/ev119/erlocator/internal/core/quota"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders CLI results.
type Formatter interface {
	// FormatFacilities renders a facility list. report is nil for plain searches.
	FormatFacilities(list *core.FacilityList, report *engine.MergeReport) (string, error)
	// FormatBlocks renders active quota blocks relative to now.
	FormatBlocks(blocks []quota.Block, now time.Time) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

func valueOrDash(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "-"
	}
	return *v
}

func distanceLabel(d *float64) string {
	if d == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f km", *d)
}

func phoneLabel(item *core.FacilityItem) string {
	if item.EmergencyPhone != "" {
		return item.EmergencyPhone
	}
	if item.Phone != "" {
		return item.Phone
	}
	return "-"
}

func remainingLabel(block quota.Block, now time.Time) string {
	if block.ExpiresAt.IsZero() {
		return "unknown"
	}
	remaining := block.ExpiresAt.Sub(now).Round(time.Second)
	if remaining <= 0 {
		return "expiring"
	}
	return remaining.String()
}

func expiresLabel(block quota.Block) string {
	if block.ExpiresAt.IsZero() {
		return "-"
	}
	return block.ExpiresAt.UTC().Format(time.RFC3339)
}

func summaryLine(list *core.FacilityList, report *engine.MergeReport) string {
	summary := fmt.Sprintf("%d of %d facilities", len(list.Items()), list.Body.TotalCount)
	if report != nil {
		summary += fmt.Sprintf(", capacity: %s (%d matched)", report.Outcome, report.MatchedItems)
	}
	return summary
}
