package event

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// byteOrder is the framing order for the tag prefix: big-endian.
var byteOrder = binary.BigEndian

// wireEvent is the JSON-like structured encoding of a single event's body.
// Tag order and the u16 tag prefix are bit-exact; the body itself is free
// to evolve field-by-field without breaking older readers, which is why it
// is not packed positionally.
type wireEvent struct {
	NewLoopOutAdded      *NewLoopOutAdded      `json:"new_loop_out_added,omitempty"`
	ClaimTxPublished     *ClaimTxPublished     `json:"claim_tx_published,omitempty"`
	OffChainOfferStarted *OffChainOfferStarted `json:"off_chain_offer_started,omitempty"`
	OffChainOfferResolved *OffChainOfferResolved `json:"off_chain_offer_resolved,omitempty"`
	NewLoopInAdded       *NewLoopInAdded       `json:"new_loop_in_added,omitempty"`
	SwapTxPublished      *SwapTxPublished      `json:"swap_tx_published,omitempty"`
	RefundTxPublished    *RefundTxPublished    `json:"refund_tx_published,omitempty"`
	NewTipReceived       *NewTipReceived       `json:"new_tip_received,omitempty"`
	FinishedSuccessfully *FinishedSuccessfully `json:"finished_successfully,omitempty"`
	FinishedByRefund     *FinishedByRefund     `json:"finished_by_refund,omitempty"`
	FinishedByError      *FinishedByError      `json:"finished_by_error,omitempty"`
	FinishedByTimeout    *FinishedByTimeout    `json:"finished_by_timeout,omitempty"`
}

// Encode serialises an event as [u16 BE tag][body]. The body of a known
// event is the JSON-like structured encoding of its fields; the body of an
// UnknownTag is its preserved raw bytes, unchanged.
func Encode(e Event) ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, byteOrder, uint16(e.Tag())); err != nil {
		return nil, fmt.Errorf("write tag: %w", err)
	}

	if u, ok := e.(UnknownTag); ok {
		buf.Write(u.RawBody)
		return buf.Bytes(), nil
	}

	var w wireEvent
	switch ev := e.(type) {
	case NewLoopOutAdded:
		w.NewLoopOutAdded = &ev
	case ClaimTxPublished:
		w.ClaimTxPublished = &ev
	case OffChainOfferStarted:
		w.OffChainOfferStarted = &ev
	case OffChainOfferResolved:
		w.OffChainOfferResolved = &ev
	case NewLoopInAdded:
		w.NewLoopInAdded = &ev
	case SwapTxPublished:
		w.SwapTxPublished = &ev
	case RefundTxPublished:
		w.RefundTxPublished = &ev
	case NewTipReceived:
		w.NewTipReceived = &ev
	case FinishedSuccessfully:
		w.FinishedSuccessfully = &ev
	case FinishedByRefund:
		w.FinishedByRefund = &ev
	case FinishedByError:
		w.FinishedByError = &ev
	case FinishedByTimeout:
		w.FinishedByTimeout = &ev
	default:
		return nil, fmt.Errorf("encode: unhandled event type %T", e)
	}

	body, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}
	buf.Write(body)

	return buf.Bytes(), nil
}

// Decode parses the output of Encode. A tag this build does not recognise
// decodes as UnknownTag with RawBody holding the bytes following the tag,
// so replay of a stream written by a newer version never fails.
func Decode(raw []byte) (Event, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("decode: short event, got %d bytes", len(raw))
	}

	tag := Tag(byteOrder.Uint16(raw[:2]))
	body := raw[2:]

	if !knownTag(tag) {
		rawBody := make([]byte, len(body))
		copy(rawBody, body)
		return UnknownTag{RawTag: tag, RawBody: rawBody}, nil
	}

	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("unmarshal body for tag %d: %w", tag, err)
	}

	switch tag {
	case TagNewLoopOutAdded:
		if w.NewLoopOutAdded == nil {
			return nil, fmt.Errorf("decode: missing body for tag %d", tag)
		}
		return *w.NewLoopOutAdded, nil
	case TagClaimTxPublished:
		if w.ClaimTxPublished == nil {
			return nil, fmt.Errorf("decode: missing body for tag %d", tag)
		}
		return *w.ClaimTxPublished, nil
	case TagOffChainOfferStarted:
		if w.OffChainOfferStarted == nil {
			return nil, fmt.Errorf("decode: missing body for tag %d", tag)
		}
		return *w.OffChainOfferStarted, nil
	case TagOffChainOfferResolved:
		if w.OffChainOfferResolved == nil {
			return nil, fmt.Errorf("decode: missing body for tag %d", tag)
		}
		return *w.OffChainOfferResolved, nil
	case TagNewLoopInAdded:
		if w.NewLoopInAdded == nil {
			return nil, fmt.Errorf("decode: missing body for tag %d", tag)
		}
		return *w.NewLoopInAdded, nil
	case TagSwapTxPublished:
		if w.SwapTxPublished == nil {
			return nil, fmt.Errorf("decode: missing body for tag %d", tag)
		}
		return *w.SwapTxPublished, nil
	case TagRefundTxPublished:
		if w.RefundTxPublished == nil {
			return nil, fmt.Errorf("decode: missing body for tag %d", tag)
		}
		return *w.RefundTxPublished, nil
	case TagNewTipReceived:
		if w.NewTipReceived == nil {
			return nil, fmt.Errorf("decode: missing body for tag %d", tag)
		}
		return *w.NewTipReceived, nil
	case TagFinishedSuccessfully:
		if w.FinishedSuccessfully == nil {
			return nil, fmt.Errorf("decode: missing body for tag %d", tag)
		}
		return *w.FinishedSuccessfully, nil
	case TagFinishedByRefund:
		if w.FinishedByRefund == nil {
			return nil, fmt.Errorf("decode: missing body for tag %d", tag)
		}
		return *w.FinishedByRefund, nil
	case TagFinishedByError:
		if w.FinishedByError == nil {
			return nil, fmt.Errorf("decode: missing body for tag %d", tag)
		}
		return *w.FinishedByError, nil
	case TagFinishedByTimeout:
		if w.FinishedByTimeout == nil {
			return nil, fmt.Errorf("decode: missing body for tag %d", tag)
		}
		return *w.FinishedByTimeout, nil
	default:
		// Unreachable: knownTag already filtered these out.
		return nil, fmt.Errorf("decode: unhandled known tag %d", tag)
	}
}

func knownTag(t Tag) bool {
	switch t {
	case TagNewLoopOutAdded, TagClaimTxPublished, TagOffChainOfferStarted,
		TagOffChainOfferResolved, TagNewLoopInAdded, TagSwapTxPublished,
		TagRefundTxPublished, TagNewTipReceived, TagFinishedSuccessfully,
		TagFinishedByRefund, TagFinishedByError, TagFinishedByTimeout:
		return true
	default:
		return false
	}
}
