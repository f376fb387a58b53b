package upstream

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ev119/erlocator/internal/core"
)

// Result codes used by the public-data gateway inside a 200 response.
const (
	resultCodeOK          = "00"
	resultCodeQuotaExceed = "22"
)

// page is a decoded public-data envelope: header, items and paging counters.
type page[T any] struct {
	Header     core.ResponseHeader
	Items      []T
	NumOfRows  int
	PageNo     int
	TotalCount int
}

// ok reports whether the gateway signalled success. A missing code counts as
// success because some gateways omit the header on plain JSON replies.
func (p *page[T]) ok() bool {
	code := strings.TrimSpace(p.Header.ResultCode)
	return code == "" || code == resultCodeOK || code == "0000"
}

type xmlEnvelope[T any] struct {
	XMLName xml.Name   `xml:"response"`
	Header  wireHeader `xml:"header"`
	Body    struct {
		Items      []T     `xml:"items>item"`
		NumOfRows  flexInt `xml:"numOfRows"`
		PageNo     flexInt `xml:"pageNo"`
		TotalCount flexInt `xml:"totalCount"`
	} `xml:"body"`
}

// xmlGatewayError is the gateway's own error document, sent instead of
// <response> when the service key is rejected or over its limit.
type xmlGatewayError struct {
	XMLName xml.Name `xml:"OpenAPI_ServiceResponse"`
	Header  struct {
		ErrMsg     string `xml:"errMsg"`
		AuthMsg    string `xml:"returnAuthMsg"`
		ReasonCode string `xml:"returnReasonCode"`
	} `xml:"cmmMsgHeader"`
}

type jsonEnvelope[T any] struct {
	Response struct {
		Header wireHeader `json:"header"`
		Body   struct {
			Items      jsonItems[T] `json:"items"`
			NumOfRows  flexInt      `json:"numOfRows"`
			PageNo     flexInt      `json:"pageNo"`
			TotalCount flexInt      `json:"totalCount"`
		} `json:"body"`
	} `json:"response"`
}

type wireHeader struct {
	ResultCode flexString `xml:"resultCode" json:"resultCode"`
	ResultMsg  flexString `xml:"resultMsg" json:"resultMsg"`
}

func (h wireHeader) toCore() core.ResponseHeader {
	return core.ResponseHeader{
		ResultCode: strings.TrimSpace(string(h.ResultCode)),
		ResultMsg:  strings.TrimSpace(string(h.ResultMsg)),
	}
}

// decodeEnvelope decodes XML or JSON, chosen by the first non-space byte.
func decodeEnvelope[T any](data []byte) (*page[T], error) {
	trimmed := bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	trimmed = bytes.TrimLeft(trimmed, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, errors.New("empty response body")
	}

	switch trimmed[0] {
	case '<':
		return decodeXMLEnvelope[T](trimmed)
	case '{':
		return decodeJSONEnvelope[T](trimmed)
	default:
		return nil, fmt.Errorf("unrecognized response format starting with %q", trimmed[0])
	}
}

func decodeXMLEnvelope[T any](data []byte) (*page[T], error) {
	if bytes.Contains(data, []byte("<OpenAPI_ServiceResponse")) {
		var gwErr xmlGatewayError
		if err := xml.Unmarshal(data, &gwErr); err != nil {
			return nil, fmt.Errorf("decode gateway error: %w", err)
		}
		return &page[T]{Header: core.ResponseHeader{
			ResultCode: strings.TrimSpace(gwErr.Header.ReasonCode),
			ResultMsg:  strings.TrimSpace(firstNonEmpty(gwErr.Header.AuthMsg, gwErr.Header.ErrMsg)),
		}}, nil
	}

	var env xmlEnvelope[T]
	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode xml envelope: %w", err)
	}
	return &page[T]{
		Header:     env.Header.toCore(),
		Items:      env.Body.Items,
		NumOfRows:  int(env.Body.NumOfRows),
		PageNo:     int(env.Body.PageNo),
		TotalCount: int(env.Body.TotalCount),
	}, nil
}

func decodeJSONEnvelope[T any](data []byte) (*page[T], error) {
	var env jsonEnvelope[T]
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode json envelope: %w", err)
	}
	return &page[T]{
		Header:     env.Response.Header.toCore(),
		Items:      env.Response.Body.Items,
		NumOfRows:  int(env.Response.Body.NumOfRows),
		PageNo:     int(env.Response.Body.PageNo),
		TotalCount: int(env.Response.Body.TotalCount),
	}, nil
}

// jsonItems accepts {"item":[...]}, {"item":{...}} and the empty string the
// gateway sends when a page has no rows.
type jsonItems[T any] []T

func (j *jsonItems[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) || data[0] == '"' {
		*j = nil
		return nil
	}

	var wrapper struct {
		Item json.RawMessage `json:"item"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return err
	}
	raw := bytes.TrimSpace(wrapper.Item)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*j = nil
		return nil
	}

	if raw[0] == '[' {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return err
		}
		*j = items
		return nil
	}

	var item T
	if err := json.Unmarshal(raw, &item); err != nil {
		return err
	}
	*j = []T{item}
	return nil
}

// flexString decodes JSON strings, numbers and booleans as their text.
type flexString string

func (f *flexString) UnmarshalText(text []byte) error {
	*f = flexString(strings.TrimSpace(string(text)))
	return nil
}

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	*f = flexString(string(data))
	return nil
}

func (f *flexString) ptr() *string {
	if f == nil {
		return nil
	}
	s := string(*f)
	return &s
}

// flexInt decodes numbers that may arrive quoted.
type flexInt int

func (f *flexInt) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer %q", s)
	}
	*f = flexInt(n)
	return nil
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	return f.UnmarshalText(bytes.Trim(bytes.TrimSpace(data), `"`))
}

// flexFloat decodes floats that may arrive quoted.
type flexFloat float64

func (f *flexFloat) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*f = flexFloat(v)
	return nil
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	return f.UnmarshalText(bytes.Trim(bytes.TrimSpace(data), `"`))
}

func (f *flexFloat) ptr() *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
