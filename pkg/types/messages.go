package types

import "github.com/pion/webrtc/v4"

// Client -> Server event names.
const (
	EvtIdentify          = "identify"
	EvtOpenAuction       = "openAuction"
	EvtJoinAuction       = "joinAuction"
	EvtConclusion        = "conclusion"
	EvtSendAskPrice      = "sendAskPrice"
	EvtSendMessage       = "sendMessage"
	EvtSenderOffer       = "senderOffer"
	EvtSenderCandidate   = "senderCandidate"
	EvtReceiverOffer     = "receiverOffer"
	EvtReceiverCandidate = "receiverCandidate"
	EvtForceExit         = "forceExit"
	EvtClose             = "close"
)

// Server -> Client event names.
const (
	EvtUpdateAuctionStatus  = "updateAuctionStatus"
	EvtCallSeller           = "callSeller"
	EvtJoinUser             = "joinUser"
	EvtStartAuction         = "startAuction"
	EvtAuctionStart         = "auctionStart"
	EvtAuctionExit          = "auctionExit"
	EvtForceAuctionExit     = "forceAuctionExit"
	EvtDontOpenAuction      = "dontOpenAuction"
	EvtGoUserAuction        = "goUserAuction"
	EvtReceiveMessage       = "receiveMessage"
	EvtRemainTime           = "remainTime"
	EvtGetSenderAnswer      = "getSenderAnswer"
	EvtGetSenderCandidate   = "getSenderCandidate"
	EvtGetReceiverAnswer    = "getReceiverAnswer"
	EvtGetReceiverCandidate = "getReceiverCandidate"
)

// ClientEvent is the envelope for every inbound socket message. Fields are
// populated per event; unset fields are omitted on the wire.
type ClientEvent struct {
	Event     string                     `json:"event"`
	ProductID string                     `json:"productId,omitempty"`
	UserID    string                     `json:"userId,omitempty"`
	Price     int64                      `json:"price,omitempty"`
	Message   string                     `json:"message,omitempty"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// ServerEvent is the envelope for every outbound socket message.
type ServerEvent struct {
	Event                 string                     `json:"event"`
	Status                string                     `json:"status,omitempty"`
	NextPrice             int64                      `json:"nextPrice,omitempty"`
	UserID                string                     `json:"userId,omitempty"`
	UpdatedUserLength     int                        `json:"updatedUserLength,omitempty"`
	OtherAuctionProductID string                     `json:"otherAuctionProductId,omitempty"`
	Message               string                     `json:"message,omitempty"`
	Remain                int64                      `json:"remain,omitempty"`
	SDP                   *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate             *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}
