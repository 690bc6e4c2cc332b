// Copyright 2024 Move Loader Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package constval decodes constant-pool bytes (spec.md §4.10's
// constant_at) into Go values. U128/U256 constants are decoded through
// apd.Decimal big-integer arithmetic rather than a hand-rolled 128/256
// bit integer type, reusing the teacher's arbitrary-precision dependency.
package constval

import (
	"math/big"

	"github.com/cockroachdb/apd/v3"

	"github.com/move-lang/moveloader/internal/errloc"
	"github.com/move-lang/moveloader/internal/fileformat"
)

// Value is a decoded constant. Exactly one field is meaningful,
// selected by Kind.
type Value struct {
	Kind    fileformat.SignatureTokenKind
	Bool    bool
	U8      uint8
	U16     uint16
	U32     uint32
	U64     uint64
	Big     *apd.Decimal // U128, U256
	Address [32]byte
	Bytes   []byte // vector<u8>, used for address/signer-adjacent byte blobs
}

// Decode interprets raw little-endian constant bytes per tok.Kind,
// mirroring the file format's fixed little-endian integer encoding.
func Decode(tok fileformat.SignatureToken, raw []byte) (Value, error) {
	switch tok.Kind {
	case fileformat.SigBool:
		if len(raw) != 1 {
			return Value{}, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "bool constant must be 1 byte, got %d", len(raw))
		}
		return Value{Kind: tok.Kind, Bool: raw[0] != 0}, nil
	case fileformat.SigU8:
		if len(raw) != 1 {
			return Value{}, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "u8 constant must be 1 byte, got %d", len(raw))
		}
		return Value{Kind: tok.Kind, U8: raw[0]}, nil
	case fileformat.SigU16:
		v, err := leUint(raw, 2)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: tok.Kind, U16: uint16(v)}, nil
	case fileformat.SigU32:
		v, err := leUint(raw, 4)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: tok.Kind, U32: uint32(v)}, nil
	case fileformat.SigU64:
		v, err := leUint(raw, 8)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: tok.Kind, U64: v}, nil
	case fileformat.SigU128:
		d, err := leBigDecimal(raw, 16)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: tok.Kind, Big: d}, nil
	case fileformat.SigU256:
		d, err := leBigDecimal(raw, 32)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: tok.Kind, Big: d}, nil
	case fileformat.SigAddress:
		if len(raw) != 32 {
			return Value{}, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "address constant must be 32 bytes, got %d", len(raw))
		}
		var a [32]byte
		copy(a[:], raw)
		return Value{Kind: tok.Kind, Address: a}, nil
	case fileformat.SigVector:
		return Value{Kind: tok.Kind, Bytes: append([]byte(nil), raw...)}, nil
	default:
		return Value{}, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "constant pool entries of kind %d are not representable", tok.Kind)
	}
}

func leUint(raw []byte, n int) (uint64, error) {
	if len(raw) != n {
		return 0, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "constant must be %d bytes, got %d", n, len(raw))
	}
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(raw[i])
	}
	return v, nil
}

// leBigDecimal decodes an n-byte little-endian unsigned integer into an
// apd.Decimal with zero exponent, matching how CUE's convert package
// wraps a math/big.Int via apd.NewWithBigInt.
func leBigDecimal(raw []byte, n int) (*apd.Decimal, error) {
	if len(raw) != n {
		return nil, errloc.New(errloc.UnknownInvariantViolation, errloc.Location{}, "constant must be %d bytes, got %d", n, len(raw))
	}
	be := make([]byte, n)
	for i, b := range raw {
		be[n-1-i] = b
	}
	bi := new(big.Int).SetBytes(be)
	return apd.NewWithBigInt(new(apd.BigInt).SetMathBigInt(bi), 0), nil
}

// String renders a Value for diagnostics and annotated-layout display.
func (v Value) String() string {
	switch v.Kind {
	case fileformat.SigBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case fileformat.SigU8:
		return apd.New(int64(v.U8), 0).String()
	case fileformat.SigU16:
		return apd.New(int64(v.U16), 0).String()
	case fileformat.SigU32:
		return apd.New(int64(v.U32), 0).String()
	case fileformat.SigU64:
		return apd.New(int64(v.U64), 0).String()
	case fileformat.SigU128, fileformat.SigU256:
		return v.Big.String()
	case fileformat.SigAddress:
		return hexString(v.Address[:])
	default:
		return hexString(v.Bytes)
	}
}

func hexString(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 2+len(b)*2)
	out[0], out[1] = '0', 'x'
	for i, c := range b {
		out[2+i*2] = hexdigits[c>>4]
		out[2+i*2+1] = hexdigits[c&0xf]
	}
	return string(out)
}
