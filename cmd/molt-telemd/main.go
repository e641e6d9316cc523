// SPDX-License-Identifier: Apache-2.0
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
	"github.com/sourcegraph/jsonrpc2"
	ws "github.com/sourcegraph/jsonrpc2/websocket"
	"github.com/tliron/commonlog"

	"molt-midend/internal/telemetry"
)

// telemdHandler answers the small read-only JSON-RPC surface callers use to
// inspect the aggregator: a process-wide snapshot, or one function's last
// recorded policy outcome.
type telemdHandler struct{}

const (
	methodSnapshot = "telemetry/snapshot"
	methodOutcome  = "telemetry/outcome"
)

type outcomeParams struct {
	FunctionKey string `json:"function_key"`
}

func (telemdHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	correlationID := ksuid.New().String()
	telemetry.Log.Debugf("[%s] handling %s", correlationID, req.Method)

	switch req.Method {
	case methodSnapshot:
		snap := telemetry.Global.Snapshot()
		if err := conn.Reply(ctx, req.ID, snap); err != nil {
			telemetry.Log.Errorf("[%s] reply failed: %s", correlationID, err)
		}
	case methodOutcome:
		var p outcomeParams
		if req.Params != nil {
			if err := json.Unmarshal(*req.Params, &p); err != nil {
				replyInvalidParams(ctx, conn, req, err)
				return
			}
		}
		snap := telemetry.Global.Snapshot()
		outcome, ok := snap.Outcomes[p.FunctionKey]
		if !ok {
			if err := conn.ReplyWithError(ctx, req.ID, &jsonrpc2.Error{
				Code:    jsonrpc2.CodeInvalidParams,
				Message: "unknown function_key: " + p.FunctionKey,
			}); err != nil {
				telemetry.Log.Errorf("[%s] reply failed: %s", correlationID, err)
			}
			return
		}
		if err := conn.Reply(ctx, req.ID, outcome); err != nil {
			telemetry.Log.Errorf("[%s] reply failed: %s", correlationID, err)
		}
	default:
		if req.Notif {
			return
		}
		if err := conn.ReplyWithError(ctx, req.ID, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: "unknown method: " + req.Method,
		}); err != nil {
			telemetry.Log.Errorf("[%s] reply failed: %s", correlationID, err)
		}
	}
}

func replyInvalidParams(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, err error) {
	_ = conn.ReplyWithError(ctx, req.ID, &jsonrpc2.Error{
		Code:    jsonrpc2.CodeInvalidParams,
		Message: err.Error(),
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func main() {
	addr := flag.String("addr", ":7777", "listen address for the telemetry introspection service")
	flag.Parse()

	commonlog.Configure(1, nil)
	log := commonlog.GetLogger("molt.telemd")

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Errorf("websocket upgrade failed: %s", err)
			return
		}
		stream := ws.NewObjectStream(conn)
		<-jsonrpc2.NewConn(r.Context(), stream, telemdHandler{}).DisconnectNotify()
	})

	log.Infof("starting telemetry introspection service on %s", *addr)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		log.Errorf("molt-telemd exited: %s", err)
		os.Exit(1)
	}
}
