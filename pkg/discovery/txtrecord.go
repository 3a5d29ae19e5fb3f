package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeServiceTXT creates TXT records for an SMP service.
func EncodeServiceTXT(info *ServiceInfo) TXTRecordMap {
	txt := make(TXTRecordMap)

	txt[TXTKeyVersion] = strconv.FormatUint(uint64(info.Version), 10)
	txt[TXTKeyBufSize] = strconv.Itoa(info.BufSize)
	txt[TXTKeyBufCount] = strconv.Itoa(info.BufCount)

	if info.MTU > 0 {
		txt[TXTKeyMTU] = strconv.Itoa(info.MTU)
	}

	return txt
}

// DecodeServiceTXT parses TXT records of an SMP service. Instance and Port
// are left for the caller to fill from the DNS-SD entry.
func DecodeServiceTXT(txt TXTRecordMap) (*ServiceInfo, error) {
	info := &ServiceInfo{}

	v, err := requiredUint(txt, TXTKeyVersion, 8)
	if err != nil {
		return nil, err
	}
	info.Version = uint8(v)

	bs, err := requiredUint(txt, TXTKeyBufSize, 31)
	if err != nil {
		return nil, err
	}
	info.BufSize = int(bs)

	bc, err := requiredUint(txt, TXTKeyBufCount, 31)
	if err != nil {
		return nil, err
	}
	info.BufCount = int(bc)

	if s, ok := txt[TXTKeyMTU]; ok {
		mtu, err := strconv.ParseUint(s, 10, 31)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyMTU, s)
		}
		info.MTU = int(mtu)
	}

	return info, nil
}

func requiredUint(txt TXTRecordMap, key string, bits int) (uint64, error) {
	s, ok := txt[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingRequired, key)
	}
	n, err := strconv.ParseUint(s, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, key, s)
	}
	return n, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings,
// sorted by key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if found {
			txt[k] = v
		} else if k != "" {
			// Key without value (boolean flag)
			txt[k] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrMissingRequired)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
