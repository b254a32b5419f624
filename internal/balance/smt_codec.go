package balance

import (
	"fmt"

	"alkanes/pkg/alkanes"
)

// EncodeSMT renders a sheet as a flat record the SMT can store at an
// outpoint's key: each entry as block||tx||amount, 48 bytes apiece, in
// the sheet's canonical (sorted) order. Shared by the indexer driver
// (writing it on every flush) and the VM host's __balance call (reading
// it back pinned to a historical root), so both sides of the codec stay
// in one place.
func EncodeSMT(s *Sheet) []byte {
	entries := s.Entries()
	out := make([]byte, 0, len(entries)*48)
	for _, e := range entries {
		block := e.ID.Block.Bytes16BE()
		tx := e.ID.Tx.Bytes16BE()
		amt := e.Amount.Bytes16BE()
		out = append(out, block[:]...)
		out = append(out, tx[:]...)
		out = append(out, amt[:]...)
	}
	return out
}

// AmountFromSMT decodes an EncodeSMT record and returns the amount held
// for id, zero if the record has no entry for it.
func AmountFromSMT(record []byte, id alkanes.RuneId) (alkanes.U128, error) {
	if len(record)%48 != 0 {
		return alkanes.U128{}, fmt.Errorf("balance: malformed smt balance record: length %d not a multiple of 48", len(record))
	}
	for off := 0; off < len(record); off += 48 {
		block, err := alkanes.U128FromBytesBE(record[off : off+16])
		if err != nil {
			return alkanes.U128{}, fmt.Errorf("balance: decode smt balance record: %w", err)
		}
		tx, err := alkanes.U128FromBytesBE(record[off+16 : off+32])
		if err != nil {
			return alkanes.U128{}, fmt.Errorf("balance: decode smt balance record: %w", err)
		}
		if block == id.Block && tx == id.Tx {
			amt, err := alkanes.U128FromBytesBE(record[off+32 : off+48])
			if err != nil {
				return alkanes.U128{}, fmt.Errorf("balance: decode smt balance record: %w", err)
			}
			return amt, nil
		}
	}
	return alkanes.ZeroU128, nil
}
