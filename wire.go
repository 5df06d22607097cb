package tinyquanta

import "encoding/binary"

// HeaderSize is the fixed size of the application header carried in every
// UDP datagram this engine exchanges, mirroring struct rte_rocksdb_hdr:
// id, req_type, req_size, run_ns, each a big-endian uint32.
const HeaderSize = 16

// Request kinds (§3 "Job descriptor"): only ReqTypePointGet is implemented.
// A shard treats any other req_type as the fatal "unknown request kind"
// condition of §7 rather than silently dropping it, matching the original's
// assert on the job kind switch.
const (
	ReqTypePointGet  = 0
	ReqTypeRangeScan = 1
)

// RequestHeader is the 16-byte application header of an inbound datagram.
//
// ReqSize is overloaded: the original packs the numeric lookup key into
// what its struct names req_size (rte_be_to_cpu_32(rx_ptr_rocksdb_hdr->req_size)
// is read directly as idle_coro->jinfo->key). That overload is kept
// verbatim here — Key() is the one accessor the rest of the engine uses,
// so the odd field name is isolated to this struct.
type RequestHeader struct {
	ID      uint32
	ReqType uint32
	ReqSize uint32 // overloaded: carries the lookup key, not a size
	RunNs   uint32
}

// Key returns the numeric key this request is asking about.
func (h RequestHeader) Key() uint32 { return h.ReqSize }

// ReplyHeader mirrors RequestHeader; run_ns is always zeroed on reply,
// matching rte_rocksdb_hdr->run_ns = 0 in the original.
type ReplyHeader struct {
	ID      uint32
	ReqType uint32
	ReqSize uint32
	RunNs   uint32
}

// ParseRequestHeader decodes the fixed 16-byte app header from a datagram
// payload. Returns an error if the payload is too short, the one framing
// malformation this engine actually detects (the NIC substrate does not
// hand the dispatcher partial Ethernet/IP/UDP headers — those are parsed
// below the Ring interface boundary).
func ParseRequestHeader(payload []byte) (RequestHeader, error) {
	if len(payload) < HeaderSize {
		return RequestHeader{}, NewError("PARSE", ErrCodeMalformedFrame, "payload shorter than app header")
	}
	return RequestHeader{
		ID:      binary.BigEndian.Uint32(payload[0:4]),
		ReqType: binary.BigEndian.Uint32(payload[4:8]),
		ReqSize: binary.BigEndian.Uint32(payload[8:12]),
		RunNs:   binary.BigEndian.Uint32(payload[12:16]),
	}, nil
}

// BuildReply writes a ReplyHeader into buf (which must be at least
// HeaderSize bytes), copying id/req_type/req_size from the request and
// zeroing run_ns — steps 2-5 of reply construction. The value itself is
// out of band in this UDP-socket substrate (the kernel already stripped
// Ethernet/IP/UDP framing on receive and will re-add it on send), so
// BuildReply only ever needs to write the app header; a caller that wants
// to echo the looked-up value appends it after HeaderSize bytes.
func BuildReply(buf []byte, req RequestHeader) ReplyHeader {
	reply := ReplyHeader{ID: req.ID, ReqType: req.ReqType, ReqSize: req.ReqSize, RunNs: 0}
	binary.BigEndian.PutUint32(buf[0:4], reply.ID)
	binary.BigEndian.PutUint32(buf[4:8], reply.ReqType)
	binary.BigEndian.PutUint32(buf[8:12], reply.ReqSize)
	binary.BigEndian.PutUint32(buf[12:16], reply.RunNs)
	return reply
}
