package output

import (
	"encoding/json"
	"time"

	"github.com/ev119/erlocator/internal/core"
	"github.com/ev119/erlocator/internal/core/engine"
	"github.com/ev119/erlocator/internal/core/quota"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

type facilityDocument struct {
	Data   *core.FacilityList  `json:"data"`
	Report *engine.MergeReport `json:"report,omitempty"`
}

type blockDocument struct {
	Region1   string     `json:"region1"`
	Region2   string     `json:"region2"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Remaining string     `json:"remaining"`
}

// FormatFacilities renders the facility envelope, plus the merge report when present.
func (f *JSONFormatter) FormatFacilities(list *core.FacilityList, report *engine.MergeReport) (string, error) {
	if list == nil {
		return "", nil
	}
	return f.marshal(facilityDocument{Data: list, Report: report})
}

// FormatBlocks renders quota blocks as a JSON array.
func (f *JSONFormatter) FormatBlocks(blocks []quota.Block, now time.Time) (string, error) {
	docs := make([]blockDocument, 0, len(blocks))
	for _, block := range blocks {
		doc := blockDocument{
			Region1:   block.Pair.Region1,
			Region2:   block.Pair.Region2,
			Remaining: remainingLabel(block, now),
		}
		if !block.ExpiresAt.IsZero() {
			expires := block.ExpiresAt.UTC()
			doc.ExpiresAt = &expires
		}
		docs = append(docs, doc)
	}
	return f.marshal(docs)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
