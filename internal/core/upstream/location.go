package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/ev119/erlocator/internal/core"
)

// LocationClient queries the facility search upstream by coordinates.
type LocationClient struct {
	Client     *http.Client
	BaseURL    string
	ServiceKey string
	Logger     *logging.Logger
}

type wireFacility struct {
	FacilityID     flexString  `xml:"hpid" json:"hpid"`
	Name           flexString  `xml:"dutyName" json:"dutyName"`
	Address        flexString  `xml:"dutyAddr" json:"dutyAddr"`
	Division       flexString  `xml:"dutyDivName" json:"dutyDivName"`
	Phone          flexString  `xml:"dutyTel1" json:"dutyTel1"`
	EmergencyPhone flexString  `xml:"dutyTel3" json:"dutyTel3"`
	Latitude       *flexFloat  `xml:"latitude" json:"latitude"`
	Longitude      *flexFloat  `xml:"longitude" json:"longitude"`
	Distance       *flexFloat  `xml:"distance" json:"distance"`
	Hvec           *flexString `xml:"hvec" json:"hvec"`
	Hvgc           *flexString `xml:"hvgc" json:"hvgc"`
}

func (w wireFacility) toCore() *core.FacilityItem {
	return &core.FacilityItem{
		FacilityID:        string(w.FacilityID),
		Name:              string(w.Name),
		Address:           string(w.Address),
		Division:          string(w.Division),
		Phone:             string(w.Phone),
		EmergencyPhone:    string(w.EmergencyPhone),
		Latitude:          w.Latitude.ptr(),
		Longitude:         w.Longitude.ptr(),
		Distance:          w.Distance.ptr(),
		CapacityEmergency: w.Hvec.ptr(),
		CapacityGeneral:   w.Hvgc.ptr(),
	}
}

// Search returns the facilities near q. Failures are *BaseLookupError.
func (c *LocationClient) Search(ctx context.Context, q core.GeoQuery) (*core.FacilityList, error) {
	if c == nil {
		return nil, &BaseLookupError{Err: errors.New("location client is not configured")}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	q = q.Normalize()

	rawURL, err := buildURL(c.BaseURL, c.ServiceKey, url.Values{
		"WGS84_LON": {strconv.FormatFloat(q.Longitude, 'f', -1, 64)},
		"WGS84_LAT": {strconv.FormatFloat(q.Latitude, 'f', -1, 64)},
		"pageNo":    {strconv.Itoa(q.PageNo)},
		"numOfRows": {strconv.Itoa(q.NumOfRows)},
	})
	if err != nil {
		return nil, &BaseLookupError{Err: err}
	}

	resp, err := get(ctx, c.Client, "location", rawURL)
	if err != nil {
		return nil, &BaseLookupError{Err: err}
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	body, err := readBody(resp)
	if err != nil {
		return nil, &BaseLookupError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if c.Logger != nil {
			c.Logger.Error("Facility lookup failed",
				zap.Int("status", resp.StatusCode),
				zap.String("body", truncateForLog(body)))
		}
		return nil, &BaseLookupError{StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode))}
	}

	decoded, err := decodeEnvelope[wireFacility](body)
	if err != nil {
		return nil, &BaseLookupError{StatusCode: resp.StatusCode, Err: err}
	}
	if !decoded.ok() {
		return nil, &BaseLookupError{
			StatusCode: resp.StatusCode,
			ResultCode: decoded.Header.ResultCode,
			Err:        errors.New(decoded.Header.ResultMsg),
		}
	}

	items := make([]*core.FacilityItem, 0, len(decoded.Items))
	for _, item := range decoded.Items {
		items = append(items, item.toCore())
	}

	if c.Logger != nil {
		c.Logger.Debug("Facility lookup complete",
			zap.String("url", redactURL(rawURL)),
			zap.Int("items", len(items)),
			zap.Int("total_count", decoded.TotalCount))
	}

	return &core.FacilityList{
		Header: decoded.Header,
		Body: core.FacilityListBody{
			Items:      items,
			NumOfRows:  decoded.NumOfRows,
			PageNo:     decoded.PageNo,
			TotalCount: decoded.TotalCount,
		},
	}, nil
}
