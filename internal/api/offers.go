package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rickgao/offerwatch/internal/model"
)

const (
	pathGetTradeOffers        = "/IEconService/GetTradeOffers/v1"
	pathGetTradeOffer         = "/IEconService/GetTradeOffer/v1"
	pathGetTradeOffersSummary = "/IEconService/GetTradeOffersSummary/v1"
)

// maxPages bounds cursor following so a misbehaving remote cannot loop us forever.
const maxPages = 100

// GetTradeOffers fetches one page of offers.
func (c *Client) GetTradeOffers(ctx context.Context, opts GetTradeOffersOptions) (*OffersPayload, error) {
	query := url.Values{}
	query.Set("get_sent_offers", boolParam(opts.Sent))
	query.Set("get_received_offers", boolParam(opts.Received))
	query.Set("get_descriptions", boolParam(opts.Descriptions))
	query.Set("active_only", boolParam(opts.ActiveOnly))
	query.Set("historical_only", boolParam(opts.HistoricalOnly))

	cutoff := opts.HistoricalCutoff
	if cutoff <= 0 {
		cutoff = DefaultHistoricalCutoff
	}
	query.Set("time_historical_cutoff", strconv.FormatInt(cutoff, 10))
	query.Set("language", c.language)
	if opts.Cursor > 0 {
		query.Set("cursor", strconv.Itoa(opts.Cursor))
	}

	var resp OffersResponse
	if err := c.get(ctx, pathGetTradeOffers, query, &resp); err != nil {
		return nil, fmt.Errorf("get trade offers: %w", err)
	}

	return &resp.Response, nil
}

// GetAllTradeOffers fetches every page matching the options.
func (c *Client) GetAllTradeOffers(ctx context.Context, opts GetTradeOffersOptions) (*OffersPayload, error) {
	var all OffersPayload
	opts.Cursor = 0

	for page := 0; page < maxPages; page++ {
		resp, err := c.GetTradeOffers(ctx, opts)
		if err != nil {
			return nil, err
		}

		all.Sent = append(all.Sent, resp.Sent...)
		all.Received = append(all.Received, resp.Received...)
		all.Descriptions = append(all.Descriptions, resp.Descriptions...)

		if resp.NextCursor == 0 || resp.NextCursor == opts.Cursor {
			return &all, nil
		}
		opts.Cursor = resp.NextCursor
	}

	c.logger.Warn("trade offer paging truncated", "pages", maxPages)
	return &all, nil
}

// GetTradeOffer fetches a single offer by id.
func (c *Client) GetTradeOffer(ctx context.Context, id string) (*APIOffer, []APIDescription, error) {
	query := url.Values{}
	query.Set("tradeofferid", id)
	query.Set("language", c.language)

	var resp SingleOfferResponse
	if err := c.get(ctx, pathGetTradeOffer, query, &resp); err != nil {
		return nil, nil, fmt.Errorf("get trade offer %s: %w", id, err)
	}
	if resp.Response.Offer == nil || resp.Response.Offer.TradeOfferID == "" {
		return nil, nil, fmt.Errorf("get trade offer %s: %w", id, ErrNotFound)
	}
	return resp.Response.Offer, resp.Response.Descriptions, nil
}

// GetOfferState returns the current state of one offer.
func (c *Client) GetOfferState(ctx context.Context, id string) (model.OfferState, error) {
	o, _, err := c.GetTradeOffer(ctx, id)
	if err != nil {
		return 0, err
	}
	return model.OfferState(o.State), nil
}

// GetTradeOffersSummary fetches offer counters since lastVisit.
// A zero lastVisit asks for counters since the beginning.
func (c *Client) GetTradeOffersSummary(ctx context.Context, lastVisit time.Time) (*Summary, error) {
	query := url.Values{}
	var sec int64
	if !lastVisit.IsZero() {
		sec = lastVisit.Unix()
	}
	query.Set("time_last_visit", strconv.FormatInt(sec, 10))

	var resp SummaryResponse
	if err := c.get(ctx, pathGetTradeOffersSummary, query, &resp); err != nil {
		return nil, fmt.Errorf("get trade offers summary: %w", err)
	}
	return &resp.Response, nil
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
