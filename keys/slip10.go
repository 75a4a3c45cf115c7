package keys

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
)

const ed25519SeedKey = "ed25519 seed"

// slip10Node is an Ed25519 private key together with its chain code.
type slip10Node struct {
	key       [32]byte
	chainCode [32]byte
}

func slip10Master(seed []byte) slip10Node {
	mac := hmac.New(sha512.New, []byte(ed25519SeedKey))
	mac.Write(seed)
	return splitNode(mac.Sum(nil))
}

// child derives a hardened child. Ed25519 has no public derivation, so raw must
// carry the hardening offset.
func (n slip10Node) child(raw uint32) slip10Node {
	data := make([]byte, 0, 1+32+4)
	data = append(data, 0x00)
	data = append(data, n.key[:]...)
	data = binary.BigEndian.AppendUint32(data, raw)

	mac := hmac.New(sha512.New, n.chainCode[:])
	mac.Write(data)
	return splitNode(mac.Sum(nil))
}

func (n slip10Node) privateKey() ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(n.key[:])
}

func (n *slip10Node) zero() {
	for i := range n.key {
		n.key[i] = 0
	}
	for i := range n.chainCode {
		n.chainCode[i] = 0
	}
}

func splitNode(sum []byte) slip10Node {
	var n slip10Node
	copy(n.key[:], sum[:32])
	copy(n.chainCode[:], sum[32:])
	for i := range sum {
		sum[i] = 0
	}
	return n
}

func deriveEd25519(seed []byte, chain Chain) (ed25519.PrivateKey, error) {
	for i, s := range chain {
		if !s.Hardened {
			return nil, &PathError{Chain: chain.String(), Segment: i, Reason: "ed25519 supports hardened derivation only"}
		}
	}
	node := slip10Master(seed)
	for _, s := range chain {
		next := node.child(s.Raw())
		node.zero()
		node = next
	}
	priv := node.privateKey()
	node.zero()
	return priv, nil
}
