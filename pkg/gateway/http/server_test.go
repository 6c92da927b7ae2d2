package http

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ethercat "github.com/samsamfire/goethercat"
	"github.com/samsamfire/goethercat/pkg/coe"
	"github.com/samsamfire/goethercat/pkg/esc"
	"github.com/samsamfire/goethercat/pkg/mailbox"
	"github.com/samsamfire/goethercat/pkg/network"
	"github.com/samsamfire/goethercat/pkg/slave"
	"github.com/samsamfire/goethercat/pkg/transport/virtual"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const STATION_TEST = uint16(0x1002)

var testTimeouts = ethercat.Timeouts{
	StateTransition: 50 * time.Millisecond,
	Pdu:             10 * time.Millisecond,
	MailboxEcho:     20 * time.Millisecond,
	MailboxResponse: 40 * time.Millisecond,
	LoopTick:        time.Millisecond,
}

func createNetwork(t *testing.T) (*network.Network, *virtual.Network, *virtual.SdoServer) {
	segment := virtual.NewNetwork(nil)
	segment.AddDevice(0x1001)
	device := segment.AddDevice(STATION_TEST)
	write := mailbox.Mailbox{Address: 0x1000, Length: 128, SyncManager: 0}
	read := mailbox.Mailbox{Address: 0x1080, Length: 128, SyncManager: 1}
	require.Nil(t, device.ConfigureMailbox(write, read))
	server := virtual.NewSdoServer(read.Length, nil)
	server.Set(0x1018, 1, []byte{0x02, 0x00, 0x00, 0x00})
	server.Set(0x1018, 2, []byte{0x52, 0x0c, 0x44, 0x04})
	server.Set(0x2002, 0, []byte{0x00})
	server.Set(0x2003, 0, []byte{0x00, 0x00})
	server.SetReadOnly(0x2004, 0, []byte{0x01, 0x02, 0x03, 0x04})
	device.AttachSdoServer(server)

	n := network.New(segment, testTimeouts, nil)
	_, err := n.AddSlave(0x1001)
	require.Nil(t, err)
	_, err = n.AddSlave(STATION_TEST, slave.WithMailbox(mailbox.Config{Write: &write, Read: &read, Protocols: mailbox.ProtocolCoE}))
	require.Nil(t, err)
	return n, segment, server
}

func createClient(t *testing.T) (*GatewayClient, *GatewayServer, *virtual.Network) {
	n, segment, _ := createNetwork(t)
	gw := NewGatewayServer(n, 0, 100, nil)
	ts := httptest.NewServer(gw.Handler())
	t.Cleanup(ts.Close)
	client := NewGatewayClient(ts.URL, API_VERSION, nil)
	return client, gw, segment
}

func TestInvalidURIs(t *testing.T) {
	client, _, _ := createClient(t)
	resp := new(GatewayResponseBase)
	err := client.Do(http.MethodGet, "/", nil, resp)
	assert.EqualValues(t, ErrGwSyntaxError, err)
	err = client.Do(http.MethodGet, "/10/strt//", nil, resp)
	assert.EqualValues(t, ErrGwRequestNotSupported, err)
	err = client.Do(http.MethodGet, "/0/r/0x2002/0", nil, resp)
	assert.EqualValues(t, ErrGwUnsupportedStation, err)
	err = client.Do(http.MethodGet, fmt.Sprintf("/%d/r/0x2002", STATION_TEST), nil, resp)
	assert.EqualValues(t, ErrGwSyntaxError, err)
	err = client.Do(http.MethodGet, "/all/r/0x2002/0", nil, resp)
	assert.EqualValues(t, ErrGwRequestNotSupported, err)
	err = client.Do(http.MethodPut, "/10/bootstrap", nil, resp)
	assert.EqualValues(t, ErrGwRequestNotSupported, err)
}

func TestStateCommand(t *testing.T) {
	client, _, segment := createClient(t)
	assert.Nil(t, client.State("all", "preop"))
	for _, address := range segment.Addresses() {
		device, _ := segment.Device(address)
		assert.Equal(t, esc.StatePreOp, device.State())
	}
	assert.Nil(t, client.State(fmt.Sprint(STATION_TEST), "safeop"))
	device, _ := segment.Device(STATION_TEST)
	assert.Equal(t, esc.StateSafeOp, device.State())

	device.RefuseState(esc.StateOp, esc.AlInvalidRequestedStateChange)
	assert.EqualValues(t, ErrGwWrongState, client.State(fmt.Sprint(STATION_TEST), "op"))
	assert.EqualValues(t, ErrGwUnsupportedStation, client.State("0x1005", "op"))
	assert.EqualValues(t, ErrGwNoDefaultStationSet, client.State("default", "op"))
}

func TestWriteRead(t *testing.T) {
	client, _, _ := createClient(t)
	err := client.WriteRaw(STATION_TEST, 0x2002, 0, "0x10", "i8")
	assert.Nil(t, err)
	err = client.WriteRaw(STATION_TEST, 0x2003, 0, "0x5432", "i16")
	assert.Nil(t, err)
	data, length, err := client.ReadRaw(STATION_TEST, 0x2003, 0)
	assert.Nil(t, err)
	assert.Equal(t, "0x5432", data)
	assert.Equal(t, 2, length)

	err = client.WriteRaw(STATION_TEST, 0x2004, 0, "0x1", "u32")
	assert.EqualValues(t, &GatewayError{Code: int(coe.AbortReadOnly)}, err)
	err = client.WriteRaw(STATION_TEST, 0x2003, 0, "0x5432", "r32")
	assert.EqualValues(t, ErrGwRequestNotSupported, err)
	err = client.WriteRaw(STATION_TEST, 0x2003, 0, "hello", "u16")
	assert.EqualValues(t, &GatewayError{Code: int(coe.AbortTypeMismatch)}, err)
	_, _, err = client.ReadRaw(STATION_TEST, 0x3000, 0)
	assert.EqualValues(t, &GatewayError{Code: int(coe.AbortNotExist)}, err)
	_, _, err = client.ReadRaw(0x1001, 0x2003, 0)
	assert.EqualValues(t, ErrGwRequestNotProcessed, err)
}

func TestDefaultStation(t *testing.T) {
	client, gw, _ := createClient(t)
	_, _, err := client.ReadRaw(0, 0x2003, 0)
	assert.EqualValues(t, ErrGwUnsupportedStation, err)
	resp := new(SDOReadResponse)
	err = client.Do(http.MethodGet, "/default/r/0x2003/0", nil, resp)
	assert.EqualValues(t, ErrGwNoDefaultStationSet, err)

	assert.EqualValues(t, ErrGwUnsupportedStation, client.SetDefaultStation(0x1005))
	assert.Nil(t, client.SetDefaultStation(STATION_TEST))
	assert.Equal(t, STATION_TEST, gw.DefaultStation())
	err = client.Do(http.MethodGet, "/default/r/0x2003/0", nil, resp)
	assert.Nil(t, err)
	assert.Equal(t, "0x0000", resp.Data)
}

func TestGetVersion(t *testing.T) {
	client, _, _ := createClient(t)
	version, err := client.GetVersion()
	assert.Nil(t, err)
	assert.Equal(t, "02.01", version.ProtocolVersion)
}

func TestGetIdentity(t *testing.T) {
	client, _, _ := createClient(t)
	identity, err := client.GetIdentity(STATION_TEST)
	assert.Nil(t, err)
	assert.Equal(t, "0x00000002", identity.VendorId)
	assert.Equal(t, "0x04440c52", identity.ProductCode)
	assert.Equal(t, "0x00000000", identity.SerialNumber)
}

func TestGatewayErrorString(t *testing.T) {
	assert.Equal(t, "ERROR:101", ErrGwSyntaxError.Error())
	assert.Equal(t, "Syntax error", ErrGwSyntaxError.Description())
	abort := &GatewayError{Code: int(coe.AbortNotExist)}
	assert.Equal(t, "ERROR:0x6020000", abort.Error())
	resp := GatewayResponseBase{Response: abort.Error()}
	assert.EqualValues(t, abort, resp.GetError())
	assert.Nil(t, (&GatewayResponseBase{Response: "OK"}).GetError())
}
