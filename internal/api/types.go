package api

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// DefaultHistoricalCutoff is the remote's own default for time_historical_cutoff
// (2014-01-06). Offers updated before it are never returned.
const DefaultHistoricalCutoff int64 = 1389106496

// OffersResponse from GET /IEconService/GetTradeOffers/v1
type OffersResponse struct {
	Response OffersPayload `json:"response"`
}

// OffersPayload is the body of a GetTradeOffers response.
type OffersPayload struct {
	Sent         []APIOffer       `json:"trade_offers_sent"`
	Received     []APIOffer       `json:"trade_offers_received"`
	Descriptions []APIDescription `json:"descriptions"`
	NextCursor   int              `json:"next_cursor"`
}

// SingleOfferResponse from GET /IEconService/GetTradeOffer/v1
type SingleOfferResponse struct {
	Response struct {
		Offer        *APIOffer        `json:"offer"`
		Descriptions []APIDescription `json:"descriptions"`
	} `json:"response"`
}

// SummaryResponse from GET /IEconService/GetTradeOffersSummary/v1
type SummaryResponse struct {
	Response Summary `json:"response"`
}

// Summary holds the counters returned by GetTradeOffersSummary.
type Summary struct {
	PendingReceived    int `json:"pending_received_count"`
	NewReceived        int `json:"new_received_count"`
	UpdatedReceived    int `json:"updated_received_count"`
	HistoricalReceived int `json:"historical_received_count"`
	PendingSent        int `json:"pending_sent_count"`
	NewlyAcceptedSent  int `json:"newly_accepted_sent_count"`
	UpdatedSent        int `json:"updated_sent_count"`
	HistoricalSent     int `json:"historical_sent_count"`
	EscrowReceived     int `json:"escrow_received_count"`
	EscrowSent         int `json:"escrow_sent_count"`
}

// APIOffer represents a trade offer from the Web API.
type APIOffer struct {
	TradeOfferID       string    `json:"tradeofferid"`
	AccountIDOther     uint32    `json:"accountid_other"`
	Message            string    `json:"message"`
	ExpirationTime     int64     `json:"expiration_time"`
	State              int       `json:"trade_offer_state"`
	ItemsToGive        []APIItem `json:"items_to_give"`
	ItemsToReceive     []APIItem `json:"items_to_receive"`
	IsOurOffer         bool      `json:"is_our_offer"`
	TimeCreated        int64     `json:"time_created"`
	TimeUpdated        int64     `json:"time_updated"`
	FromRealTimeTrade  bool      `json:"from_real_time_trade"`
	EscrowEndDate      int64     `json:"escrow_end_date"`
	ConfirmationMethod int       `json:"confirmation_method"`
}

// APIItem represents one asset inside an offer.
type APIItem struct {
	AppID      uint32    `json:"appid"`
	ContextID  string    `json:"contextid"`
	AssetID    string    `json:"assetid"`
	ClassID    string    `json:"classid"`
	InstanceID string    `json:"instanceid"`
	Amount     flexInt64 `json:"amount"`
	Missing    bool      `json:"missing"`
}

// APIDescription is an item description returned when get_descriptions is set.
type APIDescription struct {
	AppID          uint32 `json:"appid"`
	ClassID        string `json:"classid"`
	InstanceID     string `json:"instanceid"`
	Name           string `json:"name"`
	MarketHashName string `json:"market_hash_name"`
	Type           string `json:"type"`
	Tradable       bool   `json:"tradable"`
}

// GetTradeOffersOptions configures a GetTradeOffers request.
type GetTradeOffersOptions struct {
	Sent             bool
	Received         bool
	Descriptions     bool
	ActiveOnly       bool
	HistoricalOnly   bool
	HistoricalCutoff int64 // unix seconds; 0 selects DefaultHistoricalCutoff
	Cursor           int
}

// flexInt64 accepts both JSON numbers and numeric strings. The remote sends
// item amounts as strings.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*f = flexInt64(n)
	return nil
}

func (f flexInt64) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatInt(int64(f), 10))
}
