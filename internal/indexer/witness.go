package indexer

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// extractInscription scans a transaction's first input witness for an
// envelope of the form OP_FALSE OP_IF <data pushes...> OP_ENDIF and returns
// the concatenated pushes, the convention spec.md's S1 scenario refers to
// as a "scriptSig inscription of a 2 KB guest": direct-init and
// predictable deployments carry their wasm bytecode this way rather than
// as cellpack words, which only ever carry the target id and opcodes.
func extractInscription(tx *wire.MsgTx) ([]byte, bool) {
	if len(tx.TxIn) == 0 {
		return nil, false
	}
	for _, item := range tx.TxIn[0].Witness {
		if payload, ok := scanInscriptionEnvelope(item); ok {
			return payload, true
		}
	}
	return nil, false
}

func scanInscriptionEnvelope(script []byte) ([]byte, bool) {
	const (
		stateSeekFalse = iota
		stateSeekIf
		stateCollecting
	)
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	state := stateSeekFalse
	var payload []byte
	for tokenizer.Next() {
		op := tokenizer.Opcode()
		switch state {
		case stateSeekFalse:
			if op == txscript.OP_FALSE {
				state = stateSeekIf
			}
		case stateSeekIf:
			if op == txscript.OP_IF {
				state = stateCollecting
			} else {
				state = stateSeekFalse
			}
		case stateCollecting:
			if op == txscript.OP_ENDIF {
				return payload, true
			}
			payload = append(payload, tokenizer.Data()...)
		}
	}
	if tokenizer.Err() != nil {
		return nil, false
	}
	return nil, false
}
