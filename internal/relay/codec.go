package relay

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/rickgao/offerwatch/internal/model"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create relay CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create relay CBOR decoder mode: %v", err))
	}
}

// EncodeEvent encodes an event for publishing.
func EncodeEvent(ev model.NewOfferEvent) ([]byte, error) {
	return encMode.Marshal(ev)
}

// DecodeEvent decodes a published payload.
func DecodeEvent(data []byte) (model.NewOfferEvent, error) {
	var ev model.NewOfferEvent
	if err := decMode.Unmarshal(data, &ev); err != nil {
		return model.NewOfferEvent{}, err
	}
	return ev, nil
}
