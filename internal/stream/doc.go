// Package stream serves new-offer events over WebSocket.
//
// Each connection gets its own notify observer, so a slow reader loses its
// oldest events instead of holding up the long poller. Frames are JSON
// encoded model.NewOfferEvent values. Client is the matching consumer used by
// offerprobe.
package stream
