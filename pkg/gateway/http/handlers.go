package http

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/samsamfire/goethercat/pkg/esc"
	log "github.com/sirupsen/logrus"
)

// Wrapper around [http.ResponseWriter] but keeps track of any writes already done
// This allows us to perform default behaviour if handler has not already sent a response
type doneWriter struct {
	http.ResponseWriter
	done bool
}

// Handle a [GatewayRequest]
type GatewayRequestHandler func(ctx context.Context, w *doneWriter, req *GatewayRequest) error

func (w *doneWriter) WriteHeader(status int) {
	w.done = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *doneWriter) Write(b []byte) (int, error) {
	w.done = true
	return w.ResponseWriter.Write(b)
}

// Create a new sanitized api request object from raw http request
// This function also checks that values are within bounds etc.
func (g *GatewayServer) newRequestFromRaw(r *http.Request) (*GatewayRequest, error) {
	match := regURI.FindStringSubmatch(r.URL.Path)
	if len(match) != 5 {
		g.logger.Error("request does not match a known API pattern")
		return nil, ErrGwSyntaxError
	}
	apiVersion := match[1]
	if apiVersion != API_VERSION {
		g.logger.WithField("version", apiVersion).Error("api version is not supported")
		return nil, ErrGwRequestNotSupported
	}
	sequence, err := strconv.Atoi(match[2])
	if err != nil || sequence > MAX_SEQUENCE_NB {
		g.logger.WithField("sequence", match[2]).Error("error processing sequence number")
		return nil, ErrGwSyntaxError
	}
	station, err := parseStationParam(match[3])
	if err != nil || station == 0 {
		g.logger.WithField("param", match[3]).Error("error processing station param")
		return nil, ErrGwUnsupportedStation
	}

	var parameters json.RawMessage
	err = json.NewDecoder(r.Body).Decode(&parameters)
	if err != nil && err != io.EOF {
		g.logger.WithError(err).Warn("failed to unmarshal request body")
		return nil, ErrGwSyntaxError
	}
	return &GatewayRequest{
		station:    station,
		command:    match[4], // Contains rest of URL after station
		sequence:   uint32(sequence),
		parameters: parameters,
	}, nil
}

// Default handler of any HTTP gateway request
// This parses a typical request and forwards it to the correct handler
func (g *GatewayServer) handleRequest(w http.ResponseWriter, raw *http.Request) {
	g.logger.WithField("endpoint", raw.URL).Debug("handle incoming request")
	req, err := g.newRequestFromRaw(raw)
	if err != nil {
		w.Write(NewResponseError(0, err))
		return
	}
	// The full command is looked up first, then only its part up to the
	// first "/" : 'info/version' is a route, 'read/0x2000/0x0' is handled by 'read'
	route, ok := g.routes[req.command]
	if !ok {
		firstCommand, _, _ := strings.Cut(req.command, "/")
		route, ok = g.routes[firstCommand]
		if !ok {
			g.logger.WithFields(log.Fields{"command": req.command, "firstCommand": firstCommand}).Debug("no handler found")
			w.Write(NewResponseError(int(req.sequence), ErrGwRequestNotSupported))
			return
		}
	}
	dw := &doneWriter{ResponseWriter: w, done: false}
	err = route(raw.Context(), dw, req)
	if err != nil {
		g.logger.WithError(err).WithField("command", req.command).Debug("request failed")
		w.Write(NewResponseError(int(req.sequence), err))
		return
	}
	if !dw.done {
		// No response specific command has been given, reply with default success
		dw.Write(NewResponseSuccess(int(req.sequence)))
	}
}

// Station addressed by a single slave request
func (g *GatewayServer) station(req *GatewayRequest) (uint16, error) {
	switch req.station {
	case TOKEN_DEFAULT, TOKEN_NONE:
		station := g.DefaultStation()
		if station == 0 {
			return 0, ErrGwNoDefaultStationSet
		}
		return station, nil
	case TOKEN_ALL:
		return 0, ErrGwRequestNotSupported
	default:
		return uint16(req.station), nil
	}
}

// Create a handler for requesting an AL state
func (g *GatewayServer) createStateHandler(state esc.SlaveState) GatewayRequestHandler {
	return func(ctx context.Context, w *doneWriter, req *GatewayRequest) error {
		if req.station == TOKEN_ALL {
			return g.StateCommand(ctx, 0, state)
		}
		station, err := g.station(req)
		if err != nil {
			return err
		}
		return g.StateCommand(ctx, station, state)
	}
}

// Can be used for specifying some routes that are known but
// not implemented by this gateway
func handlerNotSupported(ctx context.Context, w *doneWriter, req *GatewayRequest) error {
	return ErrGwRequestNotSupported
}

func (g *GatewayServer) handlerRead(ctx context.Context, w *doneWriter, req *GatewayRequest) error {
	matchSDO := regSDO.FindStringSubmatch(req.command)
	if len(matchSDO) < 2 {
		return ErrGwSyntaxError
	}
	index, subindex, err := parseSdoCommand(matchSDO[1:])
	if err != nil {
		return err
	}
	station, err := g.station(req)
	if err != nil {
		return err
	}
	data, err := g.ReadSDO(ctx, station, index, subindex)
	if err != nil {
		return err
	}
	// Shown as a number, most significant byte first
	buf := slices.Clone(data)
	slices.Reverse(buf)
	resp := SDOReadResponse{
		GatewayResponseBase: NewResponseBase(int(req.sequence), "OK"),
		Data:                "0x" + hex.EncodeToString(buf),
		Length:              len(buf),
	}
	respRaw, err := json.Marshal(resp)
	if err != nil {
		return ErrGwRequestNotProcessed
	}
	w.Write(respRaw)
	return nil
}

func (g *GatewayServer) handleWrite(ctx context.Context, w *doneWriter, req *GatewayRequest) error {
	matchSDO := regSDO.FindStringSubmatch(req.command)
	if len(matchSDO) < 2 {
		return ErrGwSyntaxError
	}
	index, subindex, err := parseSdoCommand(matchSDO[1:])
	if err != nil {
		return err
	}
	station, err := g.station(req)
	if err != nil {
		return err
	}
	var sdoWrite SDOWriteRequest
	err = json.Unmarshal(req.parameters, &sdoWrite)
	if err != nil {
		return ErrGwSyntaxError
	}
	return g.WriteSDO(ctx, station, index, subindex, sdoWrite.Value, sdoWrite.Datatype)
}

func (g *GatewayServer) handleGetVersion(ctx context.Context, w *doneWriter, req *GatewayRequest) error {
	version, err := g.GetVersion()
	if err != nil {
		return ErrGwRequestNotProcessed
	}
	resp := VersionInfo{
		GatewayResponseBase: NewResponseBase(int(req.sequence), "OK"),
		GatewayVersion:      &version,
	}
	respRaw, err := json.Marshal(resp)
	if err != nil {
		return ErrGwRequestNotProcessed
	}
	w.Write(respRaw)
	return nil
}

func (g *GatewayServer) handleGetIdentity(ctx context.Context, w *doneWriter, req *GatewayRequest) error {
	station, err := g.station(req)
	if err != nil {
		return err
	}
	identity, err := g.Identity(ctx, station)
	if err != nil {
		return err
	}
	resp := IdentityInfo{
		GatewayResponseBase: NewResponseBase(int(req.sequence), "OK"),
		VendorId:            fmt.Sprintf("0x%08x", identity.VendorId),
		ProductCode:         fmt.Sprintf("0x%08x", identity.ProductCode),
		RevisionNumber:      fmt.Sprintf("0x%08x", identity.RevisionNumber),
		SerialNumber:        fmt.Sprintf("0x%08x", identity.SerialNumber),
	}
	respRaw, err := json.Marshal(resp)
	if err != nil {
		return ErrGwRequestNotProcessed
	}
	w.Write(respRaw)
	return nil
}

func (g *GatewayServer) handleSetDefaultStation(ctx context.Context, w *doneWriter, req *GatewayRequest) error {
	var defaultStation SetDefaultStation
	err := json.Unmarshal(req.parameters, &defaultStation)
	if err != nil {
		return ErrGwSyntaxError
	}
	station, err := strconv.ParseUint(defaultStation.Value, 0, 16)
	if err != nil || station == 0 {
		return ErrGwSyntaxError
	}
	return g.SetDefaultStation(uint16(station))
}
