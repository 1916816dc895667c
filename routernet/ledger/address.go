package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/sha3"
)

// CreateAddress derives the address of the nonce-th instance created by
// creator: keccak256(rlp([creator, nonce]))[12:].
func CreateAddress(creator common.Address, nonce uint64) common.Address {
	data, err := rlp.EncodeToBytes([]interface{}{creator, nonce})
	if err != nil {
		// Both values have fixed RLP encodings.
		panic(err)
	}
	return common.BytesToAddress(keccak256(data)[12:])
}

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}
