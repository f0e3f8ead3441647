package discovery

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records for info.
func EncodeTXT(info *ServiceInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyVersion:   strconv.Itoa(ProtocolVersion),
		TXTKeyMinors:    strconv.Itoa(info.Minors),
		TXTKeyBufferLen: strconv.Itoa(info.BufferLen),
	}
	if info.TLS {
		txt[TXTKeyTLS] = "1"
	}
	return txt
}

// DecodeTXT parses the TXT records of a daemon. Unknown keys are ignored.
func DecodeTXT(txt TXTRecordMap) (*ServiceInfo, error) {
	v, err := requiredInt(txt, TXTKeyVersion)
	if err != nil {
		return nil, err
	}
	if v != ProtocolVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}

	info := &ServiceInfo{TLS: txt[TXTKeyTLS] == "1"}
	if info.Minors, err = requiredInt(txt, TXTKeyMinors); err != nil {
		return nil, err
	}
	if info.BufferLen, err = requiredInt(txt, TXTKeyBufferLen); err != nil {
		return nil, err
	}
	return info, nil
}

func requiredInt(txt TXTRecordMap, key string) (int, error) {
	s, ok := txt[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingRequired, key)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s value %q", key, s)
	}
	return n, nil
}

// TXTRecordsToStrings converts a TXT record map to "key=value" strings,
// sorted by key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	keys := make([]string, 0, len(txt))
	for k := range txt {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	result := make([]string, 0, len(txt))
	for _, k := range keys {
		result = append(result, k+"="+txt[k])
	}
	return result
}

// StringsToTXTRecords parses "key=value" strings. Entries without '='
// are treated as boolean keys with an empty value.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap, len(strs))
	for _, s := range strs {
		k, v, _ := strings.Cut(s, "=")
		if k != "" {
			txt[k] = v
		}
	}
	return txt
}

// ValidateInstanceName checks the DNS-SD instance label rules.
func ValidateInstanceName(name string) error {
	if name == "" || len(name) > 63 {
		return fmt.Errorf("%w: length %d", ErrInvalidInstanceName, len(name))
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: control character", ErrInvalidInstanceName)
		}
	}
	return nil
}
