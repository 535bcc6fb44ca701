package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/overbid/live-auction-backend/internal/registry"
	"github.com/overbid/live-auction-backend/pkg/types"
)

// Handler upgrades the connection and bridges it to the registry: a reader
// loop decoding client events and a writer goroutine draining the
// connection's outbox. The outbox stays open for the life of the connection;
// sessions and the registry only ever hold a reference to it.
func Handler(r *registry.Registry, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		conn, err := websocket.Accept(w, req, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connID := uuid.NewString()
		outbox := make(chan types.ServerEvent, 16)
		defer func() { r.Inbox() <- registry.Disconnect{ConnID: connID} }()

		writeCtx, writeCancel := context.WithCancel(req.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case <-writeCtx.Done():
					return
				case evt := <-outbox:
					payload, _ := json.Marshal(evt)
					ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
					_ = conn.Write(ctx, websocket.MessageText, payload)
					cancel()
				}
			}
		}()

		for {
			_, data, err := conn.Read(req.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				// Otherwise, just exit (Disconnect in defer):
				return
			}

			var evt types.ClientEvent
			if err := json.Unmarshal(data, &evt); err != nil {
				log.Debug("bad client payload", zap.String("conn", connID), zap.Error(err))
				continue
			}
			dispatch(r, connID, outbox, evt)
		}
	}
}

// dispatch maps one wire event onto a registry message. Unknown events are
// dropped; the protocol never surfaces errors for malformed traffic.
func dispatch(r *registry.Registry, connID string, outbox chan types.ServerEvent, evt types.ClientEvent) {
	switch evt.Event {
	case types.EvtIdentify:
		r.Inbox() <- registry.Identify{ConnID: connID, UserID: evt.UserID}

	case types.EvtOpenAuction:
		r.Inbox() <- registry.Open{ConnID: connID, UserID: evt.UserID, ProductID: evt.ProductID, Outbox: outbox}

	case types.EvtJoinAuction:
		r.Inbox() <- registry.Join{ConnID: connID, UserID: evt.UserID, ProductID: evt.ProductID, Outbox: outbox}

	case types.EvtConclusion:
		r.Inbox() <- registry.Bid{ConnID: connID, ProductID: evt.ProductID, Price: evt.Price}

	case types.EvtSendAskPrice:
		r.Inbox() <- registry.Bid{ConnID: connID, ProductID: evt.ProductID, AtAsk: true}

	case types.EvtSendMessage:
		r.Inbox() <- registry.Chat{ProductID: evt.ProductID, UserID: evt.UserID, Message: evt.Message}

	case types.EvtSenderOffer, types.EvtSenderCandidate,
		types.EvtReceiverOffer, types.EvtReceiverCandidate:
		r.Inbox() <- registry.Signal{ConnID: connID, Event: evt.Event, SDP: evt.SDP, Candidate: evt.Candidate}

	case types.EvtForceExit:
		r.Inbox() <- registry.ForceExit{ConnID: connID}

	case types.EvtClose:
		r.Inbox() <- registry.ProducerClose{ConnID: connID, ProductID: evt.ProductID}
	}
}
