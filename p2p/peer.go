// Package p2p provides the narrow transport seam the consensus Reactor
// gossips over: a Peer abstraction and channel numbering, grounded on
// cometbft/p2p's Peer/Switch/channel design but reduced to the single
// concern this repository's consensus core depends on. Peer discovery,
// the actual wire transport (secret connection handshake, PEX), and the
// full multi-channel Switch are out of scope — this package only fixes
// the seam a real transport would plug into.
package p2p

// Channel numbers partition traffic the way cometbft's consensus
// Reactor does (StateChannel/DataChannel/VoteChannel/
// VoteSetBitsChannel), so a future transport can apply per-channel
// priority/backpressure policy independently.
const (
	StateChannel       = byte(0x20)
	DataChannel        = byte(0x21)
	VoteChannel        = byte(0x22)
	VoteSetBitsChannel = byte(0x23)
)

// Peer is the subset of a connected remote node the consensus Reactor
// needs: a stable identity to key per-peer gossip state on, and a way
// to hand it an RLP-framed envelope on a given channel. TrySend must
// not block; Send may drop the message rather than block forever, but
// is allowed to wait briefly for buffer space — matching cometbft's
// Peer.Send/TrySend contract.
type Peer interface {
	ID() string
	Send(chID byte, data []byte) bool
	TrySend(chID byte, data []byte) bool
}
