// Package http is an HTTP gateway to the slaves of an EtherCAT network. It
// follows the request and response layout of CiA 309-5, with station
// addresses in place of CANopen node ids.
package http

import (
	"net/http"
	"regexp"

	"github.com/samsamfire/goethercat/pkg/esc"
	"github.com/samsamfire/goethercat/pkg/gateway"
	"github.com/samsamfire/goethercat/pkg/network"
	log "github.com/sirupsen/logrus"
)

const API_VERSION = "1.0"
const MAX_SEQUENCE_NB = 2<<31 - 1
const URI_PATTERN = `/ethercat/(\d+\.\d+)/(\d{1,10})/(0x[0-9a-fA-F]{1,4}|\d{1,5}|default|none|all)/(.*)`
const SDO_COMMAND_URI_PATTERN = `^(r|read|w|write)/(all|0x[0-9a-fA-F]{1,4}|\d{1,5})/?(0x[0-9a-fA-F]{1,2}|\d{1,3})?$`

var regURI = regexp.MustCompile(URI_PATTERN)
var regSDO = regexp.MustCompile(SDO_COMMAND_URI_PATTERN)

type GatewayServer struct {
	*gateway.BaseGateway
	logger   *log.Entry
	serveMux *http.ServeMux
	routes   map[string]GatewayRequestHandler
}

// Create a new gateway
func NewGatewayServer(network *network.Network, defaultStation uint16, sdoUploadBufferSize int, logger *log.Entry) *GatewayServer {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	base := gateway.NewBaseGateway(network, defaultStation, sdoUploadBufferSize, logger)
	gw := &GatewayServer{BaseGateway: base, logger: logger.WithField("service", "[HTTP]")}
	gw.serveMux = http.NewServeMux()
	gw.serveMux.HandleFunc("/", gw.handleRequest) // This base route handles all the requests
	gw.routes = make(map[string]GatewayRequestHandler)

	gw.addRoute("r", gw.handlerRead)
	gw.addRoute("read", gw.handlerRead)
	gw.addRoute("w", gw.handleWrite)
	gw.addRoute("write", gw.handleWrite)

	gw.addRoute("init", gw.createStateHandler(esc.StateInit))
	gw.addRoute("preop", gw.createStateHandler(esc.StatePreOp))
	gw.addRoute("preoperational", gw.createStateHandler(esc.StatePreOp))
	gw.addRoute("safeop", gw.createStateHandler(esc.StateSafeOp))
	gw.addRoute("start", gw.createStateHandler(esc.StateOp))
	gw.addRoute("op", gw.createStateHandler(esc.StateOp))
	gw.addRoute("bootstrap", handlerNotSupported)

	gw.addRoute("set/station", gw.handleSetDefaultStation)
	gw.addRoute("info/version", gw.handleGetVersion)
	gw.addRoute("info/identity", gw.handleGetIdentity)

	return gw
}

// Handler serving every gateway route
func (gw *GatewayServer) Handler() http.Handler {
	return gw.serveMux
}

// Process server, blocking
func (gw *GatewayServer) ListenAndServe(addr string) error {
	gw.logger.WithField("addr", addr).Info("starting http gateway")
	return http.ListenAndServe(addr, gw.serveMux)
}

// Add a route to the server for handling a specific command
func (gw *GatewayServer) addRoute(command string, handler GatewayRequestHandler) {
	gw.routes[command] = handler
}
