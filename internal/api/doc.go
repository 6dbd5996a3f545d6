// Package api provides the trade offer Web API client.
//
// Endpoints:
//   - GET /IEconService/GetTradeOffers/v1 (paged via next_cursor)
//   - GET /IEconService/GetTradeOffer/v1
//   - GET /IEconService/GetTradeOffersSummary/v1
//
// Every request carries the account's Web API key and, when present, its
// session cookies. OfferSource adapts a Client to poller.OfferSource.
package api
