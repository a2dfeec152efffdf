package lineage

// Capability flags as persisted in lineage files. A flag grants the holder
// of an older signing key the named privilege after the app has moved on to
// a newer key.
const (
	capInstalledData uint32 = 1 << iota
	capSharedUID
	capPermission
	capRollback
	capAuth
)

// Capabilities is the set of privileges granted to one signer in the
// lineage. The zero value grants nothing; a signer holds exactly the flags
// explicitly set for it.
type Capabilities struct {
	flags uint32
}

// CapabilitiesFromBits rebuilds a capability set from its persisted mask.
// Unknown bits are preserved so files written by newer tools survive a
// read-modify-write cycle.
func CapabilitiesFromBits(bits uint32) Capabilities {
	return Capabilities{flags: bits}
}

// Bits returns the raw flag mask as persisted in lineage files.
func (c Capabilities) Bits() uint32 { return c.flags }

// InstalledData reports whether the signer keeps access to the app data it
// signed for.
func (c Capabilities) InstalledData() bool { return c.flags&capInstalledData != 0 }

// SharedUID reports whether the signer may still join the app's shared UID.
func (c Capabilities) SharedUID() bool { return c.flags&capSharedUID != 0 }

// Permission reports whether the signer still satisfies
// signature-protected permissions.
func (c Capabilities) Permission() bool { return c.flags&capPermission != 0 }

// Rollback reports whether the app may roll back to a version signed by
// this signer.
func (c Capabilities) Rollback() bool { return c.flags&capRollback != 0 }

// Auth reports whether the signer still authenticates to other apps that
// trust it.
func (c Capabilities) Auth() bool { return c.flags&capAuth != 0 }

// CapabilitiesBuilder collects explicit capability choices. Only flags the
// caller actually set are applied; everything else keeps its prior value,
// so an absent option never silently revokes a grant.
type CapabilitiesBuilder struct {
	flags   uint32
	touched uint32
}

// NewCapabilitiesBuilder returns a builder with no flags touched.
func NewCapabilitiesBuilder() *CapabilitiesBuilder {
	return &CapabilitiesBuilder{}
}

func (b *CapabilitiesBuilder) set(flag uint32, enabled bool) *CapabilitiesBuilder {
	b.touched |= flag
	if enabled {
		b.flags |= flag
	} else {
		b.flags &^= flag
	}
	return b
}

// SetInstalledData sets the installed-data grant.
func (b *CapabilitiesBuilder) SetInstalledData(enabled bool) *CapabilitiesBuilder {
	return b.set(capInstalledData, enabled)
}

// SetSharedUID sets the shared-UID grant.
func (b *CapabilitiesBuilder) SetSharedUID(enabled bool) *CapabilitiesBuilder {
	return b.set(capSharedUID, enabled)
}

// SetPermission sets the signature-permission grant.
func (b *CapabilitiesBuilder) SetPermission(enabled bool) *CapabilitiesBuilder {
	return b.set(capPermission, enabled)
}

// SetRollback sets the rollback grant.
func (b *CapabilitiesBuilder) SetRollback(enabled bool) *CapabilitiesBuilder {
	return b.set(capRollback, enabled)
}

// SetAuth sets the auth grant.
func (b *CapabilitiesBuilder) SetAuth(enabled bool) *CapabilitiesBuilder {
	return b.set(capAuth, enabled)
}

// Apply overlays the touched flags onto base. A nil builder returns base
// unchanged.
func (b *CapabilitiesBuilder) Apply(base Capabilities) Capabilities {
	if b == nil {
		return base
	}
	return Capabilities{flags: (base.flags &^ b.touched) | (b.flags & b.touched)}
}

// Build freezes the builder into a grant snapshot holding exactly the
// touched flags that were set. A nil builder grants nothing.
func (b *CapabilitiesBuilder) Build() Capabilities {
	return b.Apply(Capabilities{})
}
