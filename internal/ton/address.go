package ton

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Friendly address layout: 1 flag byte, 1 workchain byte, 32 hash bytes,
// 2-byte big-endian CRC16/XMODEM over the preceding 34 bytes. 36 bytes
// total, 48 base64 characters.
const (
	friendlyAddrLen = 36

	flagBounceable    = 0x11
	flagNonBounceable = 0x51
	flagTestnet       = 0x80
)

// ParseRawAddress парсит строку вида "0:abcdef..." в workchain и hash.
func ParseRawAddress(raw string) (workchain int32, addrHash []byte, err error) {
	sep := strings.IndexByte(raw, ':')
	if sep <= 0 {
		return 0, nil, fmt.Errorf("invalid raw address format: %s", raw)
	}

	wc, err := strconv.ParseInt(raw[:sep], 10, 32)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid workchain in %q: %w", raw, err)
	}

	addrHash, err = hex.DecodeString(raw[sep+1:])
	if err != nil {
		return 0, nil, fmt.Errorf("invalid address hash hex: %w", err)
	}
	if len(addrHash) != 32 {
		return 0, nil, fmt.Errorf("address hash must be 32 bytes, got %d", len(addrHash))
	}

	return int32(wc), addrHash, nil
}

// FormatRawAddress renders the canonical raw form "wc:hex64".
func FormatRawAddress(workchain int32, addrHash []byte) string {
	return fmt.Sprintf("%d:%s", workchain, hex.EncodeToString(addrHash))
}

// ParseFriendlyAddress decodes a friendly (base64) address. Both standard
// and URL-safe alphabets are accepted. Rejects payloads whose length is
// not 36 bytes or whose checksum does not match.
func ParseFriendlyAddress(s string) (workchain int32, addrHash []byte, bounceable, testnet bool, err error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.URLEncoding.DecodeString(s)
		if err != nil {
			return 0, nil, false, false, fmt.Errorf("invalid base64 address: %w", err)
		}
	}

	if len(data) != friendlyAddrLen {
		return 0, nil, false, false, fmt.Errorf("friendly address must be %d bytes, got %d", friendlyAddrLen, len(data))
	}

	wantCRC := uint16(data[34])<<8 | uint16(data[35])
	if crc16xmodem(data[:34]) != wantCRC {
		return 0, nil, false, false, fmt.Errorf("address checksum mismatch")
	}

	flag := data[0]
	testnet = flag&flagTestnet != 0
	switch flag &^ flagTestnet {
	case flagBounceable:
		bounceable = true
	case flagNonBounceable:
		bounceable = false
	default:
		return 0, nil, false, false, fmt.Errorf("unknown address flag 0x%02x", flag)
	}

	// Workchain byte is a signed int8 (0xff == masterchain -1).
	workchain = int32(int8(data[1]))

	addrHash = make([]byte, 32)
	copy(addrHash, data[2:34])
	return workchain, addrHash, bounceable, testnet, nil
}

// FormatFriendlyAddress encodes workchain+hash into the friendly base64
// form. A bounceable flag is what wallets show as EQ.../kQ... prefixes.
func FormatFriendlyAddress(workchain int32, addrHash []byte, bounceable, testnet bool) (string, error) {
	if len(addrHash) != 32 {
		return "", fmt.Errorf("address hash must be 32 bytes, got %d", len(addrHash))
	}

	flag := byte(flagNonBounceable)
	if bounceable {
		flag = flagBounceable
	}
	if testnet {
		flag |= flagTestnet
	}

	data := make([]byte, friendlyAddrLen)
	data[0] = flag
	data[1] = byte(int8(workchain))
	copy(data[2:34], addrHash)

	crc := crc16xmodem(data[:34])
	data[34] = byte(crc >> 8)
	data[35] = byte(crc)

	return base64.StdEncoding.EncodeToString(data), nil
}

// NormalizeToRaw accepts either textual form and returns the raw form.
// Network information carried by a friendly flag byte is dropped: the raw
// form has none.
func NormalizeToRaw(s string) (string, error) {
	if strings.ContainsRune(s, ':') {
		wc, hash, err := ParseRawAddress(s)
		if err != nil {
			return "", err
		}
		return FormatRawAddress(wc, hash), nil
	}
	wc, hash, _, _, err := ParseFriendlyAddress(s)
	if err != nil {
		return "", err
	}
	return FormatRawAddress(wc, hash), nil
}

// crc16xmodem: poly 0x1021, init 0.
func crc16xmodem(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
