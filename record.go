package gns

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// GNS record types occupy the space above the DNS type range. Types below
// 65536 are plain DNS types and use the miekg/dns numbering.
const (
	TypePKEY    uint32 = 65536 // delegation to another zone
	TypeNICK    uint32 = 65537 // preferred nickname of a zone
	TypeLEHO    uint32 = 65538 // legacy hostname
	TypeVPN     uint32 = 65539 // tunneled service endpoint
	TypeGNS2DNS uint32 = 65540 // pivot remaining name into legacy DNS
	TypeBOX     uint32 = 65541 // boxed DNS record (SRV/TLSA style)
	TypeREVERSE uint32 = 65548 // pointer back toward an authority zone

	TypeAny = uint32(dns.TypeANY)
)

var ErrBadRecord = errors.New("bad record")

// Record is one typed name record. A zero Expiry means the expiration time
// is unknown, as with non-authoritative answers relayed from legacy DNS.
type Record struct {
	Type   uint32
	Data   []byte
	Expiry time.Time
}

func (rec Record) String() string {
	return fmt.Sprintf("%s[%d]", RecordTypeToString(rec.Type), len(rec.Data))
}

// RecordTypeToString returns the symbolic name for a record type,
// falling back to the DNS type names and finally the raw number.
func RecordTypeToString(rtype uint32) string {
	switch rtype {
	case TypePKEY:
		return "PKEY"
	case TypeNICK:
		return "NICK"
	case TypeLEHO:
		return "LEHO"
	case TypeVPN:
		return "VPN"
	case TypeGNS2DNS:
		return "GNS2DNS"
	case TypeBOX:
		return "BOX"
	case TypeREVERSE:
		return "REVERSE"
	}
	if rtype <= 0xFFFF {
		if s, ok := dns.TypeToString[uint16(rtype)]; ok {
			return s
		}
	}
	return fmt.Sprintf("TYPE%d", rtype)
}

// hasRecordType reports whether any record in recs has the given type.
func hasRecordType(recs []Record, rtype uint32) bool {
	for _, rec := range recs {
		if rec.Type == rtype {
			return true
		}
	}
	return false
}

// recordsSerialize packs a record set into a flat byte slice. The format is
// private to this package; it is used for block plaintext and for snapshots
// taken before VPN substitution.
func recordsSerialize(recs []Record) (data []byte, err error) {
	var buf bytes.Buffer
	if err = binary.Write(&buf, binary.BigEndian, uint32(len(recs))); err != nil { // #nosec G115
		return
	}
	for _, rec := range recs {
		var expiry int64
		if !rec.Expiry.IsZero() {
			expiry = rec.Expiry.UnixMicro()
		}
		if err = binary.Write(&buf, binary.BigEndian, rec.Type); err != nil {
			return
		}
		if err = binary.Write(&buf, binary.BigEndian, expiry); err != nil {
			return
		}
		if err = binary.Write(&buf, binary.BigEndian, uint32(len(rec.Data))); err != nil { // #nosec G115
			return
		}
		if _, err = buf.Write(rec.Data); err != nil {
			return
		}
	}
	data = buf.Bytes()
	return
}

func recordsDeserialize(data []byte) (recs []Record, err error) {
	rd := bytes.NewReader(data)
	var count uint32
	if err = binary.Read(rd, binary.BigEndian, &count); err != nil {
		return nil, ErrBadRecord
	}
	for i := uint32(0); i < count; i++ {
		var rec Record
		var expiry int64
		var size uint32
		if err = binary.Read(rd, binary.BigEndian, &rec.Type); err != nil {
			return nil, ErrBadRecord
		}
		if err = binary.Read(rd, binary.BigEndian, &expiry); err != nil {
			return nil, ErrBadRecord
		}
		if err = binary.Read(rd, binary.BigEndian, &size); err != nil {
			return nil, ErrBadRecord
		}
		if int(size) > rd.Len() {
			return nil, ErrBadRecord
		}
		rec.Data = make([]byte, size)
		if _, err = rd.Read(rec.Data); err != nil && size > 0 {
			return nil, ErrBadRecord
		}
		if expiry != 0 {
			rec.Expiry = time.UnixMicro(expiry)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// PkeyRecord builds a zone delegation record.
func PkeyRecord(zone ZoneKey, expiry time.Time) Record {
	return Record{Type: TypePKEY, Data: zone[:], Expiry: expiry}
}

func parsePkey(data []byte) (zone ZoneKey, err error) {
	if len(data) != len(zone) {
		err = ErrBadRecord
		return
	}
	copy(zone[:], data)
	return
}

// Gns2DnsRecord builds a DNS pivot record naming the DNS domain to continue
// under and an address or name hint for finding its nameserver.
func Gns2DnsRecord(nsName, ipHint string, expiry time.Time) Record {
	data := make([]byte, 0, len(nsName)+len(ipHint)+2)
	data = append(data, nsName...)
	data = append(data, 0)
	data = append(data, ipHint...)
	data = append(data, 0)
	return Record{Type: TypeGNS2DNS, Data: data, Expiry: expiry}
}

func parseGns2Dns(data []byte) (nsName, ipHint string, err error) {
	parts := bytes.Split(data, []byte{0})
	if len(parts) != 3 || len(parts[2]) != 0 || len(parts[0]) == 0 {
		err = ErrBadRecord
		return
	}
	nsName = string(parts[0])
	ipHint = string(parts[1])
	return
}

// VpnRecord builds a tunneled service record for the given peer, transport
// protocol number and service name.
func VpnRecord(peer PeerID, protocol uint16, service string, expiry time.Time) Record {
	data := make([]byte, 2, 2+len(peer)+len(service)+1)
	binary.BigEndian.PutUint16(data, protocol)
	data = append(data, peer[:]...)
	data = append(data, service...)
	data = append(data, 0)
	return Record{Type: TypeVPN, Data: data, Expiry: expiry}
}

func parseVpn(data []byte) (peer PeerID, protocol uint16, service string, err error) {
	if len(data) < 2+len(peer)+1 || data[len(data)-1] != 0 {
		err = ErrBadRecord
		return
	}
	protocol = binary.BigEndian.Uint16(data)
	copy(peer[:], data[2:])
	service = string(data[2+len(peer) : len(data)-1])
	return
}

// BoxRecord wraps a DNS record payload of the given type, tagged with the
// transport protocol and service port it applies to.
func BoxRecord(protocol, service uint32, rtype uint32, payload []byte, expiry time.Time) Record {
	data := make([]byte, 12, 12+len(payload))
	binary.BigEndian.PutUint32(data, protocol)
	binary.BigEndian.PutUint32(data[4:], service)
	binary.BigEndian.PutUint32(data[8:], rtype)
	data = append(data, payload...)
	return Record{Type: TypeBOX, Data: data, Expiry: expiry}
}

func parseBox(data []byte) (protocol, service, rtype uint32, payload []byte, err error) {
	if len(data) < 12 {
		err = ErrBadRecord
		return
	}
	protocol = binary.BigEndian.Uint32(data)
	service = binary.BigEndian.Uint32(data[4:])
	rtype = binary.BigEndian.Uint32(data[8:])
	payload = data[12:]
	return
}

// ReverseRecord builds a pointer from a zone back to the parent zone that
// delegated to it under the given label.
func ReverseRecord(parent ZoneKey, label string, expiry time.Time) Record {
	data := make([]byte, 0, len(parent)+len(label)+1)
	data = append(data, parent[:]...)
	data = append(data, label...)
	data = append(data, 0)
	return Record{Type: TypeREVERSE, Data: data, Expiry: expiry}
}

func parseReverse(data []byte) (parent ZoneKey, label string, err error) {
	if len(data) < len(parent)+1 || data[len(data)-1] != 0 {
		err = ErrBadRecord
		return
	}
	copy(parent[:], data)
	label = string(data[len(parent) : len(data)-1])
	return
}

// LehoRecord builds a legacy hostname record.
func LehoRecord(hostname string, expiry time.Time) Record {
	return Record{Type: TypeLEHO, Data: []byte(hostname), Expiry: expiry}
}

// recordFromRR translates a parsed DNS resource record into a Record.
// Returns ok=false for types the engine does not carry (OPT and other
// metadata records).
func recordFromRR(rr dns.RR) (rec Record, ok bool) {
	hdr := rr.Header()
	rec.Type = uint32(hdr.Rrtype)
	if hdr.Ttl > 0 {
		rec.Expiry = time.Now().Add(time.Duration(hdr.Ttl) * time.Second)
	}
	switch v := rr.(type) {
	case *dns.A:
		rec.Data = append([]byte(nil), v.A.To4()...)
	case *dns.AAAA:
		rec.Data = append([]byte(nil), v.AAAA.To16()...)
	case *dns.CNAME:
		rec.Data = []byte(strings.TrimSuffix(v.Target, "."))
	case *dns.NS:
		rec.Data = []byte(strings.TrimSuffix(v.Ns, "."))
	case *dns.PTR:
		rec.Data = []byte(strings.TrimSuffix(v.Ptr, "."))
	case *dns.TXT:
		rec.Data = []byte(strings.Join(v.Txt, ""))
	case *dns.MX:
		data := make([]byte, 2, 2+len(v.Mx))
		binary.BigEndian.PutUint16(data, v.Preference)
		rec.Data = append(data, strings.TrimSuffix(v.Mx, ".")...)
	case *dns.SRV:
		data := make([]byte, 6, 6+len(v.Target))
		binary.BigEndian.PutUint16(data, v.Priority)
		binary.BigEndian.PutUint16(data[2:], v.Weight)
		binary.BigEndian.PutUint16(data[4:], v.Port)
		rec.Data = append(data, strings.TrimSuffix(v.Target, ".")...)
	case *dns.SOA:
		var buf bytes.Buffer
		buf.WriteString(strings.TrimSuffix(v.Ns, "."))
		buf.WriteByte(0)
		buf.WriteString(strings.TrimSuffix(v.Mbox, "."))
		buf.WriteByte(0)
		_ = binary.Write(&buf, binary.BigEndian, v.Serial)
		_ = binary.Write(&buf, binary.BigEndian, v.Refresh)
		_ = binary.Write(&buf, binary.BigEndian, v.Retry)
		_ = binary.Write(&buf, binary.BigEndian, v.Expire)
		_ = binary.Write(&buf, binary.BigEndian, v.Minttl)
		rec.Data = buf.Bytes()
	case *dns.TLSA:
		data := []byte{v.Usage, v.Selector, v.MatchingType}
		rec.Data = append(data, v.Certificate...)
	default:
		return rec, false
	}
	return rec, true
}

// ARecord and AAAARecord synthesize address records.
func ARecord(ip net.IP, expiry time.Time) Record {
	return Record{Type: uint32(dns.TypeA), Data: append([]byte(nil), ip.To4()...), Expiry: expiry}
}

func AAAARecord(ip net.IP, expiry time.Time) Record {
	return Record{Type: uint32(dns.TypeAAAA), Data: append([]byte(nil), ip.To16()...), Expiry: expiry}
}
