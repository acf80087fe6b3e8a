package ffi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigMarshalRoundTrip(t *testing.T) {
	cfg := Configuration{
		CallConvention: CallConventionPlatformDefault,
		ReturnType:     Scalar(TypeU64),
		Encoding:       StringEncodingCUtf16,
		ObjectStrategy: ObjectStrategyPointToData,
		Arguments: []Argument{
			{ByRef: false, Type: Scalar(TypeU64)},
			{ByRef: true, Type: Scalar(TypeU32)},
			{ByRef: false, Type: Scalar(TypeU8)},
			{ByRef: false, Type: Scalar(TypeString)},
		},
	}

	buf := MarshalConfig(cfg)
	got, err := UnmarshalConfig(buf)
	require.NoError(t, err)
	require.True(t, cfg.Equal(got), "round-tripped configuration must equal the original")
}

func TestConfigMarshalRoundTripStructure(t *testing.T) {
	cfg := Configuration{
		CallConvention: CallConventionSysV,
		ReturnType:     Structure(Scalar(TypeU32), Scalar(TypeU8), Structure(Scalar(TypeI64))),
		Encoding:       StringEncodingUtf8,
		ObjectStrategy: ObjectStrategyRemain,
		Arguments: []Argument{
			{ByRef: false, Type: Scalar(TypeObject)},
		},
	}

	buf := MarshalConfig(cfg)
	got, err := UnmarshalConfig(buf)
	require.NoError(t, err)
	require.True(t, cfg.Equal(got))
}

func TestCallTypeDiscriminant(t *testing.T) {
	require.Equal(t, uint8(0xFF), Structure(Scalar(TypeU8)).Discriminant())
	require.Equal(t, uint8(0), Scalar(TypeVoid).Discriminant())
}
