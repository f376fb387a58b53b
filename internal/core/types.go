package core

import (
	"strings"
	"unicode"
)

// Default paging values for inbound geographic queries.
const (
	DefaultPageNo    = 1
	DefaultNumOfRows = 10
)

// GeoQuery is an inbound nearby-facility search.
type GeoQuery struct {
	Longitude float64 `json:"lon"`
	Latitude  float64 `json:"lat"`
	PageNo    int     `json:"pageNo"`
	NumOfRows int     `json:"numOfRows"`
}

// Normalize applies paging defaults.
func (q GeoQuery) Normalize() GeoQuery {
	if q.PageNo <= 0 {
		q.PageNo = DefaultPageNo
	}
	if q.NumOfRows <= 0 {
		q.NumOfRows = DefaultNumOfRows
	}
	return q
}

// FacilityItem is one emergency facility from the base lookup.
//
// CapacityEmergency and CapacityGeneral are nil when the upstream did not send
// them; the merge step fills them in place when realtime data matches.
type FacilityItem struct {
	FacilityID        string   `json:"hpid,omitempty"`
	Name              string   `json:"dutyName,omitempty"`
	Address           string   `json:"dutyAddr,omitempty"`
	Division          string   `json:"dutyDivName,omitempty"`
	Phone             string   `json:"dutyTel1,omitempty"`
	EmergencyPhone    string   `json:"dutyTel3,omitempty"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
	Distance          *float64 `json:"distance,omitempty"`
	CapacityEmergency *string  `json:"hvec"`
	CapacityGeneral   *string  `json:"hvgc"`
}

// ResponseHeader mirrors the public-data result header.
type ResponseHeader struct {
	ResultCode string `json:"resultCode"`
	ResultMsg  string `json:"resultMsg"`
}

// FacilityListBody holds the page of facilities.
type FacilityListBody struct {
	Items      []*FacilityItem `json:"items"`
	NumOfRows  int             `json:"numOfRows"`
	PageNo     int             `json:"pageNo"`
	TotalCount int             `json:"totalCount"`
}

// FacilityList is the base lookup envelope returned to callers unchanged in shape.
type FacilityList struct {
	Header ResponseHeader   `json:"header"`
	Body   FacilityListBody `json:"body"`
}

// Items returns the facility items, tolerating a nil list.
func (l *FacilityList) Items() []*FacilityItem {
	if l == nil {
		return nil
	}
	return l.Body.Items
}

// Empty reports whether the list carries no items.
func (l *FacilityList) Empty() bool {
	return len(l.Items()) == 0
}

// CapacityRecord is one facility's live bed availability.
type CapacityRecord struct {
	FacilityID        string  `json:"hpid"`
	Name              string  `json:"dutyName,omitempty"`
	CapacityEmergency *string `json:"hvec,omitempty"`
	CapacityGeneral   *string `json:"hvgc,omitempty"`
	CapacitySurgery   *string `json:"hvoc,omitempty"`
	CapacityICU       *string `json:"hvicc,omitempty"`
	UpdatedAt         string  `json:"hvidate,omitempty"`
}

// CapacityPage is one page of realtime capacity records.
type CapacityPage struct {
	Items      []CapacityRecord `json:"items"`
	PageNo     int              `json:"pageNo"`
	NumOfRows  int              `json:"numOfRows"`
	TotalCount int              `json:"totalCount"`
}

// RegionPair is the (region1, region2) key used to query realtime capacity.
type RegionPair struct {
	Region1 string `json:"region1"`
	Region2 string `json:"region2"`
}

// Key returns the dedup key for the pair.
func (p RegionPair) Key() string {
	return p.Region1 + "||" + p.Region2
}

func (p RegionPair) String() string {
	return p.Region1 + " " + p.Region2
}

// NormalizeFacilityID strips every whitespace rune, including NBSP, so ids from
// both upstreams compare equal.
func NormalizeFacilityID(id string) string {
	if id == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, id)
}
