package lineage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sigforge/apksigner/pkg/lineage"
)

// TestZeroCapabilitiesGrantNothing verifies the zero value carries no
// grants at all.
func TestZeroCapabilitiesGrantNothing(t *testing.T) {
	t.Parallel()

	var caps lineage.Capabilities
	assert.False(t, caps.InstalledData())
	assert.False(t, caps.SharedUID())
	assert.False(t, caps.Permission())
	assert.False(t, caps.Rollback())
	assert.False(t, caps.Auth())
	assert.Zero(t, caps.Bits())
}

// TestCapabilitiesBuilderBuild verifies Build grants exactly the flags set
// to true, whether or not others were touched.
func TestCapabilitiesBuilderBuild(t *testing.T) {
	t.Parallel()

	caps := lineage.NewCapabilitiesBuilder().
		SetRollback(true).
		SetAuth(true).
		SetSharedUID(false).
		Build()

	assert.True(t, caps.Rollback())
	assert.True(t, caps.Auth())
	assert.False(t, caps.SharedUID())
	assert.False(t, caps.InstalledData())
	assert.False(t, caps.Permission())
}

// TestCapabilitiesBuilderApply verifies only touched flags change and the
// rest keep the base value.
func TestCapabilitiesBuilderApply(t *testing.T) {
	t.Parallel()

	base := lineage.NewCapabilitiesBuilder().
		SetInstalledData(true).
		SetAuth(true).
		Build()

	caps := lineage.NewCapabilitiesBuilder().
		SetAuth(false).
		SetPermission(true).
		Apply(base)

	assert.False(t, caps.Auth())
	assert.True(t, caps.Permission())
	assert.True(t, caps.InstalledData())
	assert.False(t, caps.SharedUID())
	assert.False(t, caps.Rollback())
}

// TestNilCapabilitiesBuilder verifies a nil builder is a no-op overlay and
// builds an empty grant.
func TestNilCapabilitiesBuilder(t *testing.T) {
	t.Parallel()

	var b *lineage.CapabilitiesBuilder
	base := lineage.NewCapabilitiesBuilder().SetPermission(true).Build()

	assert.Equal(t, base, b.Apply(base))
	assert.Equal(t, lineage.Capabilities{}, b.Build())
}

// TestCapabilitiesBitsRoundTrip verifies unknown persisted bits survive a
// read-modify-write cycle.
func TestCapabilitiesBitsRoundTrip(t *testing.T) {
	t.Parallel()

	const unknownBit = uint32(1) << 20
	known := lineage.NewCapabilitiesBuilder().
		SetInstalledData(true).
		SetPermission(true).
		Build()
	bits := known.Bits() | unknownBit

	caps := lineage.CapabilitiesFromBits(bits)
	assert.Equal(t, bits, caps.Bits())

	touched := lineage.NewCapabilitiesBuilder().SetRollback(true).Apply(caps)
	assert.True(t, touched.Rollback())
	assert.NotZero(t, touched.Bits()&unknownBit)

	reverted := lineage.NewCapabilitiesBuilder().SetRollback(false).Apply(touched)
	assert.Equal(t, bits, reverted.Bits())
}
