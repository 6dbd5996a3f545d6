// Package relay republishes new-offer events on a Redis channel so other
// processes can react without polling the Web API themselves.
//
// Payloads are CBOR encoded model.NewOfferEvent values with integer keys.
package relay
