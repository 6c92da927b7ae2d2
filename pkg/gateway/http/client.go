package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
)

type GatewayClient struct {
	http.Client
	logger            *log.Entry
	baseURL           string
	apiVersion        string
	currentSequenceNb int
}

func NewGatewayClient(baseURL string, apiVersion string, logger *log.Entry) *GatewayClient {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &GatewayClient{
		logger:     logger.WithField("service", "[HTTP CLIENT]"),
		Client:     http.Client{},
		baseURL:    baseURL,
		apiVersion: apiVersion,
	}
}

// HTTP request to the gateway, uri starts with the station
// Does error checking : http related errors, json decode errors
// or actual gateway errors
func (client *GatewayClient) Do(method string, uri string, body io.Reader, response GatewayResponse) error {
	client.currentSequenceNb += 1
	baseUri := client.baseURL + "/ethercat" + fmt.Sprintf("/%s/%d", client.apiVersion, client.currentSequenceNb)
	req, err := http.NewRequest(method, baseUri+uri, body)
	if err != nil {
		client.logger.WithError(err).Error("failed to create request")
		return err
	}
	httpResp, err := client.Client.Do(req)
	if err != nil {
		client.logger.WithError(err).Error("failed request")
		return err
	}
	defer httpResp.Body.Close()
	err = json.NewDecoder(httpResp.Body).Decode(response)
	if err != nil {
		client.logger.WithError(err).Error("failed to decode response")
		return err
	}
	err = response.GetError()
	if err != nil {
		return err
	}
	sequence := response.GetSequenceNb()
	if client.currentSequenceNb != sequence {
		client.logger.WithFields(log.Fields{"sequence": sequence, "expected": client.currentSequenceNb}).Error("wrong sequence number")
		return fmt.Errorf("error in sequence number")
	}
	return nil
}

// ReadRaw via SDO, data is an hex number
func (client *GatewayClient) ReadRaw(station uint16, index uint16, subIndex uint8) (data string, length int, err error) {
	resp := new(SDOReadResponse)
	err = client.Do(http.MethodGet, fmt.Sprintf("/%d/r/0x%x/%d", station, index, subIndex), nil, resp)
	if err != nil {
		return
	}
	return resp.Data, resp.Length, nil
}

// WriteRaw via SDO
func (client *GatewayClient) WriteRaw(station uint16, index uint16, subIndex uint8, value string, datatype string) error {
	req := SDOWriteRequest{Value: value, Datatype: datatype}
	encodedReq, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return client.Do(http.MethodPut, fmt.Sprintf("/%d/w/0x%x/%d", station, index, subIndex), bytes.NewBuffer(encodedReq), new(GatewayResponseBase))
}

// Request an AL state (init, preop, safeop, op) from station, or all
// slaves with station "all"
func (client *GatewayClient) State(station string, state string) error {
	return client.Do(http.MethodPut, fmt.Sprintf("/%s/%s", station, state), nil, new(GatewayResponseBase))
}

// Change the station used for "default" requests
func (client *GatewayClient) SetDefaultStation(station uint16) error {
	encodedReq, err := json.Marshal(SetDefaultStation{Value: fmt.Sprintf("0x%x", station)})
	if err != nil {
		return err
	}
	return client.Do(http.MethodPut, "/none/set/station", bytes.NewBuffer(encodedReq), new(GatewayResponseBase))
}

// Read gateway version
func (client *GatewayClient) GetVersion() (*VersionInfo, error) {
	versionInfo := new(VersionInfo)
	err := client.Do(http.MethodGet, "/none/info/version", nil, versionInfo)
	return versionInfo, err
}

// Read identity of station
func (client *GatewayClient) GetIdentity(station uint16) (*IdentityInfo, error) {
	identity := new(IdentityInfo)
	err := client.Do(http.MethodGet, fmt.Sprintf("/%d/info/identity", station), nil, identity)
	return identity, err
}
