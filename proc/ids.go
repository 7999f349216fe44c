// Package proc implements the processor contract and the processor factory:
// the registry + lifecycle manager that creates, tracks, keepalives, and
// reaps conversation handlers across a fleet of peers.
package proc

// masterBit is the most significant bit of a 32-bit conversation id. Ids
// with the bit set belong to the MASTER (initiator) space; ids with the bit
// clear belong to the SLAVE (responder) space. Id 0 is never valid.
const masterBit uint32 = 1 << 31

// IsMaster reports whether id belongs to the master (initiator) id space.
func IsMaster(id uint32) bool { return id&masterBit != 0 }

// ToMaster sets id's MSB, producing the master counterpart of a
// conversation id.
func ToMaster(id uint32) uint32 { return id | masterBit }

// ToSlave clears id's MSB, producing the slave counterpart of a
// conversation id.
func ToSlave(id uint32) uint32 { return id &^ masterBit }
