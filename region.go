package jrtos

import "sync"

// Access is the permission level granted to a Region, mirroring
// mpu_access_e from µC/mpu.h.
type Access uint8

const (
	// AccessNone grants no access at all.
	AccessNone Access = iota
	// AccessRead grants read-only access.
	AccessRead
	// AccessRW grants read and write access.
	AccessRW
)

// RegionAttrs carries the memory-type bits (shareable, execute-never, cache
// policy) a hardware MPU backend would program into a region descriptor;
// modeled on mpu_mem_e. The Go scheduler never executes task code out of a
// region it guards, so these are advisory metadata passed through to a
// [RegisterWriter], not enforced by the runtime itself.
type RegionAttrs struct {
	Shared       bool
	ExecuteNever bool
}

// Region describes one memory-protection region: a base address, a
// power-of-two size, per-privilege access rights, and an optional
// sub-region disable mask, mirroring mpu_region_t plus its mpu_region_INIT
// parameters.
type Region struct {
	Base             uintptr
	Size             uint32
	SubregionDisable uint8
	Attrs            RegionAttrs
	PrivAccess       Access
	UnprivAccess     Access
}

// valid mirrors mpu_region_VALIDATE: size must be a supported power of two,
// sub-region disabling requires at least 256 bytes, Base must be aligned to
// Size, and privileged access must be at least as permissive as
// unprivileged access.
func (r Region) valid() bool {
	if r.Size == 0 || r.Size&(r.Size-1) != 0 {
		return false
	}
	if r.SubregionDisable != 0 && r.Size < 256 {
		return false
	}
	if uint32(r.Base)&(r.Size-1) != 0 {
		return false
	}
	return r.PrivAccess >= r.UnprivAccess
}

// RegisterWriter programs a single hardware region slot. A real Cortex-M4
// backend implements this over the MPU's RBAR/RASR registers (µC/mpu.h); it
// is the seam a platform-specific build plugs real silicon behind.
type RegisterWriter interface {
	// NumRegions reports how many region slots the backend exposes.
	NumRegions() uint32
	// WriteRegion programs slot nr with cfg, or disables it if cfg is nil.
	WriteRegion(nr uint32, cfg *Region)
}

// GuardController manages a set of stack guard-band regions on behalf of
// the scheduler, mirroring config_mpu/update_mpu/clear_mpu/nextfreeregion_mpu.
// Every Task is assigned one region for the duration it is scheduled, kept
// just below the task's stack to catch overflow into adjacent memory.
type GuardController interface {
	// Config programs regions[0:len(regions)] into slots 0..len(regions)-1,
	// disabling every other slot. Returns EINVAL if len(regions) exceeds the
	// backend's NumRegions.
	Config(regions []Region) error
	// Update reprograms the nrregions slots starting at firstnr.
	Update(firstnr uint32, regions []Region)
	// Clear disables the nrregions slots starting at firstnr.
	Clear(firstnr, nrregions uint32)
	// NextFree returns the lowest disabled slot >= firstnr, or NumRegions()
	// if none are free.
	NextFree(firstnr uint32) uint32
}

// HardwareMPU is a [GuardController] backed by a real [RegisterWriter].
// Grounded on config_mpu/nextfreeregion_mpu/update_mpu/clear_mpu.
type HardwareMPU struct {
	mu sync.Mutex
	rw RegisterWriter
	// live tracks which slots currently hold an enabled region.
	live []bool
}

// NewHardwareMPU wraps a platform [RegisterWriter] as a [GuardController].
func NewHardwareMPU(rw RegisterWriter) *HardwareMPU {
	return &HardwareMPU{rw: rw, live: make([]bool, rw.NumRegions())}
}

func (m *HardwareMPU) Config(regions []Region) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := m.rw.NumRegions()
	if uint32(len(regions)) > max {
		return newError("Config", EINVAL, nil)
	}
	for i := range m.live {
		m.live[i] = false
	}
	for i := range regions {
		r := regions[i]
		m.rw.WriteRegion(uint32(i), &r)
		m.live[i] = r.valid()
	}
	for i := uint32(len(regions)); i < max; i++ {
		m.rw.WriteRegion(i, nil)
	}
	return nil
}

func (m *HardwareMPU) Update(firstnr uint32, regions []Region) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range regions {
		r := regions[i]
		nr := firstnr + uint32(i)
		m.rw.WriteRegion(nr, nil)
		m.rw.WriteRegion(nr, &r)
		if int(nr) < len(m.live) {
			m.live[nr] = r.valid()
		}
	}
}

func (m *HardwareMPU) Clear(firstnr, nrregions uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := nrregions; i > 0; i-- {
		nr := firstnr + i - 1
		m.rw.WriteRegion(nr, nil)
		if int(nr) < len(m.live) {
			m.live[nr] = false
		}
	}
}

func (m *HardwareMPU) NextFree(firstnr uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := uint32(len(m.live))
	for i := firstnr; i < max; i++ {
		if !m.live[i] {
			return i
		}
	}
	return max
}

// CanaryGuard is the software fallback used whenever no real
// [RegisterWriter] is available: most hosts this runtime simulates on have
// no MPU at all, so it accepts the same Config/Update/Clear/NextFree calls
// the scheduler issues on every dispatch, tracking which slots are live
// purely as bookkeeping, and programs nothing. It does not itself guard
// anything; the actual guard-band, a sentinel word written once at task
// init and checked at every suspension point, is [Task.guardCanary] /
// [Task.checkGuard], entirely independent of this type and of
// [Task.stack]. Per design note §9, that software canary is strictly
// weaker than a hardware fault (it only detects overflow that already
// happened rather than preventing the write), but it requires no platform
// support.
type CanaryGuard struct {
	mu       sync.Mutex
	regions  []Region
	disabled map[uint32]bool
}

// NewCanaryGuard returns a [GuardController] that accepts configuration
// calls (so callers needn't special-case the no-MPU platform) but performs
// no hardware programming and no overflow detection of its own; see
// [Task.checkGuard] for where that actually happens.
func NewCanaryGuard() *CanaryGuard {
	return &CanaryGuard{disabled: make(map[uint32]bool)}
}

func (g *CanaryGuard) Config(regions []Region) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.regions = append([]Region(nil), regions...)
	g.disabled = make(map[uint32]bool)
	return nil
}

func (g *CanaryGuard) Update(firstnr uint32, regions []Region) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, r := range regions {
		nr := int(firstnr) + i
		for nr >= len(g.regions) {
			g.regions = append(g.regions, Region{})
		}
		g.regions[nr] = r
		delete(g.disabled, firstnr+uint32(i))
	}
}

func (g *CanaryGuard) Clear(firstnr, nrregions uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := uint32(0); i < nrregions; i++ {
		g.disabled[firstnr+i] = true
	}
}

func (g *CanaryGuard) NextFree(firstnr uint32) uint32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := firstnr; int(i) < len(g.regions); i++ {
		if g.disabled[i] {
			return i
		}
	}
	return uint32(len(g.regions))
}
