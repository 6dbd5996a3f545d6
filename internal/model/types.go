package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Offer State
// -----------------------------------------------------------------------------

// OfferState is the lifecycle state of a trade offer.
type OfferState int

const (
	StateInvalid                OfferState = 1
	StateActive                 OfferState = 2
	StateAccepted               OfferState = 3
	StateCountered              OfferState = 4
	StateExpired                OfferState = 5
	StateCanceled               OfferState = 6
	StateDeclined               OfferState = 7
	StateInvalidItems           OfferState = 8
	StateNeedsConfirmation      OfferState = 9
	StateCanceledBySecondFactor OfferState = 10
	StateInEscrow               OfferState = 11
)

var stateNames = map[OfferState]string{
	StateInvalid:                "invalid",
	StateActive:                 "active",
	StateAccepted:               "accepted",
	StateCountered:              "countered",
	StateExpired:                "expired",
	StateCanceled:               "canceled",
	StateDeclined:               "declined",
	StateInvalidItems:           "invalid_items",
	StateNeedsConfirmation:      "needs_confirmation",
	StateCanceledBySecondFactor: "canceled_by_second_factor",
	StateInEscrow:               "in_escrow",
}

// String returns the lowercase state name.
func (s OfferState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s is one of the known states.
func (s OfferState) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// IsTerminal reports whether an offer in this state can no longer change.
// Active, needs-confirmation and in-escrow offers are still in flight.
func (s OfferState) IsTerminal() bool {
	switch s {
	case StateAccepted, StateCountered, StateExpired, StateCanceled,
		StateDeclined, StateInvalidItems, StateCanceledBySecondFactor:
		return true
	default:
		return false
	}
}

// ParseOfferState accepts a state name ("needs_confirmation", "NeedsConfirmation")
// or its number ("9").
func ParseOfferState(s string) (OfferState, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		st := OfferState(n)
		if !st.Valid() {
			return 0, fmt.Errorf("unknown offer state %d", n)
		}
		return st, nil
	}

	norm := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s))
	for st, name := range stateNames {
		if strings.ReplaceAll(name, "_", "") == norm {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown offer state %q", s)
}

// -----------------------------------------------------------------------------
// Offers
// -----------------------------------------------------------------------------

// Direction selects which side of an account's offers is of interest.
type Direction uint8

const (
	DirectionAny      Direction = iota // sent and received
	DirectionSent                      // offers this account created
	DirectionReceived                  // offers other accounts sent to this account
)

func (d Direction) String() string {
	switch d {
	case DirectionSent:
		return "sent"
	case DirectionReceived:
		return "received"
	default:
		return "any"
	}
}

// WantsSent reports whether sent offers are needed.
func (d Direction) WantsSent() bool { return d != DirectionReceived }

// WantsReceived reports whether received offers are needed.
func (d Direction) WantsReceived() bool { return d != DirectionSent }

// Item is one asset placed in an offer.
type Item struct {
	AppID      uint32 `json:"appid"`
	ContextID  string `json:"contextid"`
	AssetID    string `json:"assetid"`
	ClassID    string `json:"classid"`
	InstanceID string `json:"instanceid"`
	Amount     int64  `json:"amount"`
	Missing    bool   `json:"missing,omitempty"` // no longer present in the owner's inventory
}

// Offer is a proposed exchange of items between two accounts.
type Offer struct {
	ID                 string     `json:"id"`
	State              OfferState `json:"state"`
	AccountIDOther     uint32     `json:"accountid_other"` // 32-bit account id of the partner
	Message            string     `json:"message,omitempty"`
	IsOurOffer         bool       `json:"is_our_offer"`
	ItemsToGive        []Item     `json:"items_to_give,omitempty"`
	ItemsToReceive     []Item     `json:"items_to_receive,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	ExpiresAt          time.Time  `json:"expires_at"`
	EscrowEndsAt       time.Time  `json:"escrow_ends_at"`
	ConfirmationMethod int        `json:"confirmation_method"`
	FromRealTimeTrade  bool       `json:"from_real_time_trade"`
}

// steamID64Base is the 64-bit id of individual account 0 in the public universe.
const steamID64Base = 76561197960265728

// PartnerSteamID returns the partner's 64-bit id, or 0 when unknown.
func (o Offer) PartnerSteamID() uint64 {
	if o.AccountIDOther == 0 {
		return 0
	}
	return steamID64Base + uint64(o.AccountIDOther)
}

// ItemCount returns the number of items on each side of the offer.
func (o Offer) ItemCount() (give, receive int) {
	return len(o.ItemsToGive), len(o.ItemsToReceive)
}

// OffersResponse is the set of offers visible to one account at fetch time.
type OffersResponse struct {
	Sent     []Offer
	Received []Offer
}

// All returns sent offers followed by received offers.
func (r *OffersResponse) All() []Offer {
	if r == nil {
		return nil
	}
	all := make([]Offer, 0, len(r.Sent)+len(r.Received))
	all = append(all, r.Sent...)
	all = append(all, r.Received...)
	return all
}

// Len returns the total number of offers.
func (r *OffersResponse) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Sent) + len(r.Received)
}

// Find looks up an offer by id on the requested side(s).
func (r *OffersResponse) Find(id string, dir Direction) (Offer, bool) {
	if r == nil {
		return Offer{}, false
	}
	if dir.WantsSent() {
		for _, o := range r.Sent {
			if o.ID == id {
				return o, true
			}
		}
	}
	if dir.WantsReceived() {
		for _, o := range r.Received {
			if o.ID == id {
				return o, true
			}
		}
	}
	return Offer{}, false
}

// -----------------------------------------------------------------------------
// Events
// -----------------------------------------------------------------------------

// NewOfferEvent announces an offer seen for the first time on an account.
type NewOfferEvent struct {
	AccountKey string    `json:"account" cbor:"1,keyasint"`
	Offer      Offer     `json:"offer" cbor:"2,keyasint"`
	SeenAt     time.Time `json:"seen_at" cbor:"3,keyasint"`
}
