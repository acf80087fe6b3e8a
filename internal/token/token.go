// Package token implements the 32-bit cross-reference tokens used by
// instructions and descriptors: an 8-bit kind tag packed with a 24-bit
// index.
package token

import "github.com/lumenrt/corevm/internal/rterr"

// Kind is the 8-bit tag identifying what a token's index indexes into.
type Kind uint8

const (
	KindTypeDef Kind = iota
	KindTypeRef
	KindTypeSpec
	KindGeneric
	KindMethod
	KindMethodSpec
	KindMethodByRuntime
	KindField
)

const (
	indexMask = 0x00FFFFFF
	kindShift = 24
)

// Token is a packed (kind, index) pair: low 24 bits index, high 8 bits
// kind.
type Token uint32

// New packs a kind and index into a Token. The index is truncated to 24
// bits, matching the on-disk representation.
func New(kind Kind, index uint32) Token {
	return Token(uint32(kind)<<kindShift | (index & indexMask))
}

// Kind extracts the 8-bit kind tag.
func (t Token) Kind() Kind { return Kind(t >> kindShift) }

// Index extracts the 24-bit index.
func (t Token) Index() uint32 { return uint32(t) & indexMask }

// typeKinds and methodKinds are the allowed-variant sets downcasts are
// checked against.
var typeKinds = map[Kind]bool{
	KindTypeDef: true, KindTypeRef: true, KindTypeSpec: true, KindGeneric: true,
}
var methodKinds = map[Kind]bool{
	KindMethod: true, KindMethodSpec: true, KindMethodByRuntime: true,
}

// AsTypeToken checks that t carries a type-family kind, failing with
// EnumOutOfBounds otherwise.
func (t Token) AsTypeToken() (Token, error) {
	if !typeKinds[t.Kind()] {
		return 0, rterr.EnumOutOfBounds{TypeName: "TypeTokenKind"}
	}
	return t, nil
}

// AsMethodToken checks that t carries a method-family kind, failing with
// EnumOutOfBounds otherwise.
func (t Token) AsMethodToken() (Token, error) {
	if !methodKinds[t.Kind()] {
		return 0, rterr.EnumOutOfBounds{TypeName: "MethodTokenKind"}
	}
	return t, nil
}

// AsFieldToken checks that t is a flat Field token.
func (t Token) AsFieldToken() (Token, error) {
	if t.Kind() != KindField {
		return 0, rterr.EnumOutOfBounds{TypeName: "FieldTokenKind"}
	}
	return t, nil
}
