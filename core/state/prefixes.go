package state

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

var (
	factoringRequestSeqKeyBytes = []byte("factoring/seq/request")
	factoringOfferSeqKeyBytes   = []byte("factoring/seq/offer")
	factoringDefaultsKeyBytes   = []byte("factoring/conditions/default")
	factoringRequestPrefix      = "factoring/request/%d"
	factoringRequestOffersFmt   = "factoring/request/%d/offers"
	factoringOfferPrefix        = "factoring/offer/%d"
	factoringBillPrefix         = "factoring/bill/%d"
	factoringOwnerPrefix        = "factoring/owner/%d"
	factoringApprovalPrefix     = "factoring/approval/%d"
	factoringOperatorPrefix     = "factoring/operator/"
	factoringHoldingsPrefix     = "factoring/holdings/"
	factoringHistoryPrefix      = "factoring/history/"
	factoringPoolPrefix         = "factoring/pool/"
	pausePrefix                 = "pause/"
)

func FactoringRequestSeqKey() []byte { return append([]byte(nil), factoringRequestSeqKeyBytes...) }

func FactoringOfferSeqKey() []byte { return append([]byte(nil), factoringOfferSeqKeyBytes...) }

func FactoringDefaultConditionsKey() []byte {
	return append([]byte(nil), factoringDefaultsKeyBytes...)
}

func FactoringRequestKey(id uint64) []byte {
	return []byte(fmt.Sprintf(factoringRequestPrefix, id))
}

// FactoringRequestOffersKey indexes the offer ids of a request in creation
// order.
func FactoringRequestOffersKey(id uint64) []byte {
	return []byte(fmt.Sprintf(factoringRequestOffersFmt, id))
}

func FactoringOfferKey(id uint64) []byte { return []byte(fmt.Sprintf(factoringOfferPrefix, id)) }

func FactoringBillKey(id uint64) []byte { return []byte(fmt.Sprintf(factoringBillPrefix, id)) }

func FactoringOwnerKey(id uint64) []byte { return []byte(fmt.Sprintf(factoringOwnerPrefix, id)) }

func FactoringApprovalKey(id uint64) []byte {
	return []byte(fmt.Sprintf(factoringApprovalPrefix, id))
}

func FactoringOperatorKey(holder, operator []byte) []byte {
	return []byte(factoringOperatorPrefix + hex.EncodeToString(holder) + "/" + hex.EncodeToString(operator))
}

func FactoringHoldingsKey(holder []byte) []byte {
	return []byte(factoringHoldingsPrefix + hex.EncodeToString(holder))
}

func FactoringHistoryKey(holder []byte) []byte {
	return []byte(factoringHistoryPrefix + hex.EncodeToString(holder))
}

func FactoringPoolKey(currency string) []byte {
	return []byte(factoringPoolPrefix + strings.ToUpper(strings.TrimSpace(currency)))
}

// PauseKey stores the paused flag of a module.
func PauseKey(module string) []byte {
	return []byte(pausePrefix + strings.ToLower(strings.TrimSpace(module)))
}

func encodeID(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return buf[:]
}

func decodeIDs(values [][]byte) ([]uint64, error) {
	out := make([]uint64, 0, len(values))
	for _, v := range values {
		if len(v) != 8 {
			return nil, fmt.Errorf("state: malformed id entry of %d bytes", len(v))
		}
		out = append(out, binary.BigEndian.Uint64(v))
	}
	return out, nil
}
