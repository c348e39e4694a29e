package ton

import (
	"encoding/base64"
	"strings"
	"testing"
)

const testHashHex = "abcdef0123456789abcdef0123456789abcdef0123456789abcdef0123456789"

func TestParseRawAddress(t *testing.T) {
	tests := []struct {
		input string
		wc    int32
		valid bool
	}{
		{"0:" + testHashHex, 0, true},
		{"-1:" + testHashHex, -1, true},
		{"invalid", 0, false},
		{"0:short", 0, false},
		{":" + testHashHex, 0, false},
		{"x:" + testHashHex, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			wc, hash, err := ParseRawAddress(tt.input)
			if tt.valid {
				if err != nil {
					t.Fatalf("expected valid, got error: %v", err)
				}
				if wc != tt.wc {
					t.Errorf("workchain = %d, want %d", wc, tt.wc)
				}
				if len(hash) != 32 {
					t.Errorf("hash len = %d, want 32", len(hash))
				}
			} else if err == nil {
				t.Fatal("expected error for invalid address")
			}
		})
	}
}

// All four friendly variants of one workchain+hash must normalize to the
// same raw string, and raw -> friendly -> raw must be idempotent.
func TestAddressRoundTrip(t *testing.T) {
	raw := "0:" + testHashHex
	wc, hash, err := ParseRawAddress(raw)
	if err != nil {
		t.Fatal(err)
	}

	variants := []struct {
		name       string
		bounceable bool
		testnet    bool
	}{
		{"mainnet bounceable", true, false},
		{"mainnet non-bounceable", false, false},
		{"testnet bounceable", true, true},
		{"testnet non-bounceable", false, true},
	}

	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			friendly, err := FormatFriendlyAddress(wc, hash, v.bounceable, v.testnet)
			if err != nil {
				t.Fatal(err)
			}
			if len(friendly) != 48 {
				t.Errorf("friendly length = %d, want 48", len(friendly))
			}

			gotWC, gotHash, gotBounce, gotTestnet, err := ParseFriendlyAddress(friendly)
			if err != nil {
				t.Fatal(err)
			}
			if gotWC != wc || gotBounce != v.bounceable || gotTestnet != v.testnet {
				t.Errorf("decoded wc=%d bounce=%v testnet=%v", gotWC, gotBounce, gotTestnet)
			}
			if FormatRawAddress(gotWC, gotHash) != raw {
				t.Errorf("raw mismatch: %s", FormatRawAddress(gotWC, gotHash))
			}

			normalized, err := NormalizeToRaw(friendly)
			if err != nil {
				t.Fatal(err)
			}
			if normalized != raw {
				t.Errorf("NormalizeToRaw(%s) = %s, want %s", friendly, normalized, raw)
			}
		})
	}

	// raw -> raw is idempotent
	normalized, err := NormalizeToRaw(raw)
	if err != nil || normalized != raw {
		t.Errorf("NormalizeToRaw(raw) = %s, %v", normalized, err)
	}
}

func TestParseFriendlyAddress_URLSafeAlphabet(t *testing.T) {
	wc, hash, _ := ParseRawAddress("-1:" + testHashHex)
	friendly, err := FormatFriendlyAddress(wc, hash, true, false)
	if err != nil {
		t.Fatal(err)
	}

	urlSafe := strings.NewReplacer("+", "-", "/", "_").Replace(friendly)
	gotWC, gotHash, _, _, err := ParseFriendlyAddress(urlSafe)
	if err != nil {
		t.Fatalf("URL-safe variant rejected: %v", err)
	}
	if FormatRawAddress(gotWC, gotHash) != "-1:"+testHashHex {
		t.Error("URL-safe decode produced a different address")
	}
}

func TestParseFriendlyAddress_Rejections(t *testing.T) {
	wc, hash, _ := ParseRawAddress("0:" + testHashHex)
	friendly, _ := FormatFriendlyAddress(wc, hash, true, false)

	t.Run("corrupted checksum", func(t *testing.T) {
		data, _ := base64.StdEncoding.DecodeString(friendly)
		data[35] ^= 0xff
		if _, _, _, _, err := ParseFriendlyAddress(base64.StdEncoding.EncodeToString(data)); err == nil {
			t.Fatal("expected checksum error")
		}
	})

	t.Run("corrupted payload", func(t *testing.T) {
		data, _ := base64.StdEncoding.DecodeString(friendly)
		data[10] ^= 0x01
		if _, _, _, _, err := ParseFriendlyAddress(base64.StdEncoding.EncodeToString(data)); err == nil {
			t.Fatal("expected checksum error")
		}
	})

	t.Run("wrong length", func(t *testing.T) {
		short := base64.StdEncoding.EncodeToString([]byte("too short"))
		if _, _, _, _, err := ParseFriendlyAddress(short); err == nil {
			t.Fatal("expected length error")
		}
	})

	t.Run("not base64", func(t *testing.T) {
		if _, _, _, _, err := ParseFriendlyAddress("!!not-base64!!"); err == nil {
			t.Fatal("expected base64 error")
		}
	})

	t.Run("unknown flag", func(t *testing.T) {
		data, _ := base64.StdEncoding.DecodeString(friendly)
		data[0] = 0x22
		crc := crc16xmodem(data[:34])
		data[34], data[35] = byte(crc>>8), byte(crc)
		if _, _, _, _, err := ParseFriendlyAddress(base64.StdEncoding.EncodeToString(data)); err == nil {
			t.Fatal("expected flag error")
		}
	})
}

func TestCRC16XModem(t *testing.T) {
	// Known-answer: CRC16/XMODEM("123456789") = 0x31C3
	if got := crc16xmodem([]byte("123456789")); got != 0x31C3 {
		t.Errorf("crc16xmodem = 0x%04X, want 0x31C3", got)
	}
	if got := crc16xmodem(nil); got != 0 {
		t.Errorf("crc16xmodem(nil) = 0x%04X, want 0", got)
	}
}
