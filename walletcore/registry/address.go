package registry

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
)

var (
	ErrInvalidAddress = errors.New("invalid address")

	ss58Prefix  = []byte("SS58PRE")
	tonRaw      = regexp.MustCompile(`^-?[0-9]+:[0-9a-fA-F]{64}$`)
	tonFriendly = regexp.MustCompile(`^[A-Za-z0-9_\-+/]{48}$`)
)

// IsEvmAddress reports whether address is a 20 byte hex address
func IsEvmAddress(address string) bool {
	return common.IsHexAddress(address) && strings.HasPrefix(address, "0x")
}

// AddressChainType guesses the chain family an address belongs to
func AddressChainType(address string) (models.ChainType, bool) {
	if IsEvmAddress(address) {
		return models.ChainTypeEvm, true
	}
	// ss58 goes before ton, both can be 48 characters long
	if _, _, err := DecodeSS58(address); err == nil {
		return models.ChainTypeSubstrate, true
	}
	switch {
	case tonRaw.MatchString(address) || tonFriendly.MatchString(address):
		return models.ChainTypeTon, true
	case strings.HasPrefix(address, "addr") || strings.HasPrefix(address, "stake"):
		return models.ChainTypeCardano, true
	}
	return "", false
}

// ReformatAddress rewrites address into the native format of chain.
func ReformatAddress(address string, chain *models.ChainInfo) (string, error) {
	switch chain.ChainType {
	case models.ChainTypeEvm:
		if !IsEvmAddress(address) {
			return "", fmt.Errorf("%w: %s is not an EVM address", ErrInvalidAddress, address)
		}
		return common.HexToAddress(address).Hex(), nil
	case models.ChainTypeSubstrate:
		_, pub, err := DecodeSS58(address)
		if err != nil {
			return "", err
		}
		return EncodeSS58(pub, uint16(chain.SS58Prefix))
	case models.ChainTypeCardano:
		if chain.Bech32Prefix == "" {
			return address, nil
		}
		return ConvertBech32Address(address, chain.Bech32Prefix)
	case models.ChainTypeTon:
		if !tonRaw.MatchString(address) && !tonFriendly.MatchString(address) {
			return "", fmt.Errorf("%w: %s is not a TON address", ErrInvalidAddress, address)
		}
		return address, nil
	default:
		return "", fmt.Errorf("unknown chain type %s", chain.ChainType)
	}
}

// ConvertBech32Address converts a bech32 address to a new prefix.
// Addresses above the bech32 length limit (Cardano base addresses) only get their prefix checked.
func ConvertBech32Address(address string, targetPrefix string) (string, error) {
	if len(address) > 90 {
		if !strings.HasPrefix(address, targetPrefix+"1") {
			return "", fmt.Errorf("%w: %s does not use prefix %s", ErrInvalidAddress, address, targetPrefix)
		}
		return address, nil
	}

	_, data, err := bech32.Decode(address)
	if err != nil {
		return "", fmt.Errorf("failed to decode address: %w", err)
	}
	converted, err := bech32.Encode(targetPrefix, data)
	if err != nil {
		return "", fmt.Errorf("failed to encode address: %w", err)
	}
	return converted, nil
}

// DecodeSS58 returns the network prefix and public key of an SS58 address
func DecodeSS58(address string) (uint16, []byte, error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	var prefix uint16
	var prefixLen int
	switch len(raw) {
	case 35:
		prefix, prefixLen = uint16(raw[0]), 1
	case 36:
		prefix = uint16(raw[0]&0x3f)<<2 | uint16(raw[1])>>6 | uint16(raw[1]&0x3f)<<8
		prefixLen = 2
	default:
		return 0, nil, fmt.Errorf("%w: unexpected ss58 length %d", ErrInvalidAddress, len(raw))
	}

	body, checksum := raw[:prefixLen+32], raw[prefixLen+32:]
	if !bytes.Equal(ss58Checksum(body), checksum) {
		return 0, nil, fmt.Errorf("%w: bad ss58 checksum", ErrInvalidAddress)
	}
	return prefix, raw[prefixLen : prefixLen+32], nil
}

// EncodeSS58 encodes a 32 byte public key for the network prefix
func EncodeSS58(pub []byte, prefix uint16) (string, error) {
	if len(pub) != 32 {
		return "", fmt.Errorf("ss58 public key must be 32 bytes, got %d", len(pub))
	}

	var body []byte
	switch {
	case prefix < 64:
		body = []byte{byte(prefix)}
	case prefix < 16384:
		first := byte((prefix&0xfc)>>2) | 0x40
		second := byte(prefix>>8) | byte(prefix&0x03)<<6
		body = []byte{first, second}
	default:
		return "", fmt.Errorf("ss58 prefix %d out of range", prefix)
	}
	body = append(body, pub...)
	return base58.Encode(append(body, ss58Checksum(body)...)), nil
}

func ss58Checksum(body []byte) []byte {
	h := blake2b.Sum512(append(append([]byte{}, ss58Prefix...), body...))
	return h[:2]
}
