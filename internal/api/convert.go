package api

import (
	"time"

	"github.com/rickgao/offerwatch/internal/model"
)

// UnixTime converts a unix-seconds field to time.Time.
// Returns the zero time for 0 or negative input.
func UnixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// ToModelOffer converts an API offer to the model representation.
func ToModelOffer(o APIOffer) model.Offer {
	return model.Offer{
		ID:                 o.TradeOfferID,
		State:              model.OfferState(o.State),
		AccountIDOther:     o.AccountIDOther,
		Message:            o.Message,
		IsOurOffer:         o.IsOurOffer,
		ItemsToGive:        toModelItems(o.ItemsToGive),
		ItemsToReceive:     toModelItems(o.ItemsToReceive),
		CreatedAt:          UnixTime(o.TimeCreated),
		UpdatedAt:          UnixTime(o.TimeUpdated),
		ExpiresAt:          UnixTime(o.ExpirationTime),
		EscrowEndsAt:       UnixTime(o.EscrowEndDate),
		ConfirmationMethod: o.ConfirmationMethod,
		FromRealTimeTrade:  o.FromRealTimeTrade,
	}
}

// ToModelOffers converts a GetTradeOffers payload.
func ToModelOffers(p OffersPayload) *model.OffersResponse {
	resp := &model.OffersResponse{
		Sent:     make([]model.Offer, 0, len(p.Sent)),
		Received: make([]model.Offer, 0, len(p.Received)),
	}
	for _, o := range p.Sent {
		resp.Sent = append(resp.Sent, ToModelOffer(o))
	}
	for _, o := range p.Received {
		resp.Received = append(resp.Received, ToModelOffer(o))
	}
	return resp
}

func toModelItems(items []APIItem) []model.Item {
	if len(items) == 0 {
		return nil
	}
	out := make([]model.Item, len(items))
	for i, it := range items {
		amount := int64(it.Amount)
		if amount == 0 {
			amount = 1
		}
		out[i] = model.Item{
			AppID:      it.AppID,
			ContextID:  it.ContextID,
			AssetID:    it.AssetID,
			ClassID:    it.ClassID,
			InstanceID: it.InstanceID,
			Amount:     amount,
			Missing:    it.Missing,
		}
	}
	return out
}

// DescriptionFor returns the description matching an item's class and instance.
func DescriptionFor(descs []APIDescription, it model.Item) (APIDescription, bool) {
	for _, d := range descs {
		if d.AppID == it.AppID && d.ClassID == it.ClassID && d.InstanceID == it.InstanceID {
			return d, true
		}
	}
	return APIDescription{}, false
}
