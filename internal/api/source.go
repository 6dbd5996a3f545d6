package api

import (
	"context"

	"github.com/rickgao/offerwatch/internal/model"
	"github.com/rickgao/offerwatch/internal/poller"
)

// OfferSource adapts a Client to the poller's fetch capability.
//
// The remote treats time_historical_cutoff as "also return offers updated
// since" when active_only is set, so an incremental request becomes
// active_only plus a cutoff at Since. Only a historical request without a
// watermark pulls the full history.
type OfferSource struct {
	client *Client
}

var _ poller.OfferSource = (*OfferSource)(nil)

// NewOfferSource wraps c.
func NewOfferSource(c *Client) *OfferSource {
	return &OfferSource{client: c}
}

// FetchOffers implements poller.OfferSource.
func (s *OfferSource) FetchOffers(ctx context.Context, req poller.FetchRequest) (*model.OffersResponse, error) {
	opts := GetTradeOffersOptions{
		Sent:       req.Sent,
		Received:   req.Received,
		ActiveOnly: !req.Historical || !req.Since.IsZero(),
	}
	if !req.Since.IsZero() {
		opts.HistoricalCutoff = req.Since.Unix()
	}

	payload, err := s.client.GetAllTradeOffers(ctx, opts)
	if err != nil {
		return nil, err
	}
	return ToModelOffers(*payload), nil
}
