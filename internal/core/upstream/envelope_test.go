package upstream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const realtimeXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<response>
  <header><resultCode>00</resultCode><resultMsg>NORMAL SERVICE.</resultMsg></header>
  <body>
    <items>
      <item><hpid>A1100010</hpid><dutyName>강남세브란스병원</dutyName><hvec>3</hvec><hvgc>12</hvgc><hvidate>20250301090000</hvidate></item>
      <item><hpid> A1100011 </hpid><hvec>-2</hvec></item>
    </items>
    <numOfRows>500</numOfRows><pageNo>1</pageNo><totalCount>2</totalCount>
  </body>
</response>`

func TestDecodeXMLEnvelope(t *testing.T) {
	page, err := decodeEnvelope[wireCapacity]([]byte("\n  " + realtimeXML))
	require.NoError(t, err)
	require.True(t, page.ok())
	require.Equal(t, "NORMAL SERVICE.", page.Header.ResultMsg)
	require.Equal(t, 2, page.TotalCount)
	require.Equal(t, 500, page.NumOfRows)
	require.Len(t, page.Items, 2)

	first := page.Items[0].toCore()
	require.Equal(t, "A1100010", first.FacilityID)
	require.Equal(t, "3", *first.CapacityEmergency)
	require.Equal(t, "12", *first.CapacityGeneral)
	require.Nil(t, first.CapacitySurgery)

	second := page.Items[1].toCore()
	require.Equal(t, "A1100011", second.FacilityID)
	require.Nil(t, second.CapacityGeneral)
}

func TestDecodeJSONEnvelope(t *testing.T) {
	t.Run("ItemArray", func(t *testing.T) {
		body := `{"response":{"header":{"resultCode":"00","resultMsg":"NORMAL SERVICE."},
			"body":{"items":{"item":[{"hpid":"A1","hvec":5,"hvgc":"7"},{"hpid":"A2","hvec":null}]},
			"numOfRows":"500","pageNo":1,"totalCount":2}}}`
		page, err := decodeEnvelope[wireCapacity]([]byte(body))
		require.NoError(t, err)
		require.Equal(t, 2, page.TotalCount)
		require.Equal(t, 500, page.NumOfRows)

		first := page.Items[0].toCore()
		require.Equal(t, "5", *first.CapacityEmergency)
		require.Equal(t, "7", *first.CapacityGeneral)
		require.Nil(t, page.Items[1].toCore().CapacityEmergency)
	})

	t.Run("SingleItemObject", func(t *testing.T) {
		body := `{"response":{"header":{"resultCode":"00"},"body":{"items":{"item":{"hpid":"A1","hvec":"1"}},"totalCount":1}}}`
		page, err := decodeEnvelope[wireCapacity]([]byte(body))
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		require.Equal(t, "A1", page.Items[0].toCore().FacilityID)
	})

	t.Run("EmptyItemsString", func(t *testing.T) {
		body := `{"response":{"header":{"resultCode":"00"},"body":{"items":"","numOfRows":500,"pageNo":1,"totalCount":0}}}`
		page, err := decodeEnvelope[wireCapacity]([]byte(body))
		require.NoError(t, err)
		require.Empty(t, page.Items)
		require.Zero(t, page.TotalCount)
	})
}

func TestDecodeGatewayError(t *testing.T) {
	body := `<OpenAPI_ServiceResponse><cmmMsgHeader><errMsg>SERVICE ERROR</errMsg>
		<returnAuthMsg>LIMITED_NUMBER_OF_SERVICE_REQUESTS_EXCEEDS_ERROR</returnAuthMsg>
		<returnReasonCode>22</returnReasonCode></cmmMsgHeader></OpenAPI_ServiceResponse>`
	page, err := decodeEnvelope[wireCapacity]([]byte(body))
	require.NoError(t, err)
	require.False(t, page.ok())
	require.Equal(t, resultCodeQuotaExceed, page.Header.ResultCode)
	require.Equal(t, "LIMITED_NUMBER_OF_SERVICE_REQUESTS_EXCEEDS_ERROR", page.Header.ResultMsg)
}

func TestDecodeEnvelopeRejectsUnknownFormats(t *testing.T) {
	_, err := decodeEnvelope[wireCapacity]([]byte("   "))
	require.Error(t, err)

	_, err = decodeEnvelope[wireCapacity]([]byte("Unexpected errors"))
	require.Error(t, err)

	_, err = decodeEnvelope[wireCapacity]([]byte("<response><body><totalCount>abc</totalCount></body></response>"))
	require.Error(t, err)
}
