package deduplication

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// PacketHash identifies a packet across mesh rebroadcasts. Meshtastic packet
// IDs are only unique per sender, so the sender is part of the key.
func PacketHash(from, packetID uint32) string {
	input := strconv.FormatUint(uint64(from), 10) + "|" + strconv.FormatUint(uint64(packetID), 10) + "|"
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
