package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeHeadUnitTXT creates TXT records for head-unit discovery.
func EncodeHeadUnitTXT(info *HeadUnitInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	// Required fields
	txt[TXTKeyName] = info.Name
	txt[TXTKeyProtocolVersion] = strconv.FormatUint(uint64(info.ProtocolVersion), 10)

	// Optional fields
	if info.Make != "" {
		txt[TXTKeyMake] = info.Make
	}
	if info.Model != "" {
		txt[TXTKeyModel] = info.Model
	}
	if info.Secure {
		txt[TXTKeySecure] = "1"
	}

	return txt
}

// DecodeHeadUnitTXT parses TXT records from head-unit discovery.
func DecodeHeadUnitTXT(txt TXTRecordMap) (*HeadUnitInfo, error) {
	info := &HeadUnitInfo{}

	var ok bool
	info.Name, ok = txt[TXTKeyName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyName)
	}

	pvStr, ok := txt[TXTKeyProtocolVersion]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyProtocolVersion)
	}
	pv, err := strconv.ParseUint(pvStr, 10, 8)
	if err != nil || pv == 0 {
		return nil, fmt.Errorf("%w: bad protocol version %q", ErrInvalidTXTRecord, pvStr)
	}
	info.ProtocolVersion = uint8(pv)

	info.Make = txt[TXTKeyMake]
	info.Model = txt[TXTKeyModel]
	info.Secure = txt[TXTKeySecure] == "1"

	return info, nil
}

// TXTRecordsToStrings converts a TXT record map to "key=value" strings in
// deterministic key order.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	keys := make([]string, 0, len(txt))
	for k := range txt {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+txt[k])
	}
	return out
}

// ParseTXTStrings converts "key=value" strings into a TXT record map.
// Malformed entries without a separator are skipped.
func ParseTXTStrings(records []string) TXTRecordMap {
	txt := make(TXTRecordMap, len(records))
	for _, r := range records {
		k, v, ok := strings.Cut(r, "=")
		if !ok || k == "" {
			continue
		}
		txt[k] = v
	}
	return txt
}

// ValidateTXTSize checks the encoded records against the size limit.
func ValidateTXTSize(records []string) error {
	total := 0
	for _, r := range records {
		// Each record carries a one-byte length prefix on the wire.
		total += len(r) + 1
	}
	if total > MaxTXTRecordSize {
		return fmt.Errorf("%w: %d > %d", ErrTXTRecordTooBig, total, MaxTXTRecordSize)
	}
	return nil
}
