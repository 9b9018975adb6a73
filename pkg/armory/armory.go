// Package armory is the server-held catalog of weapons and equipment
// slots. Clients never supply weapon stats; every number used in combat
// resolution comes from here.
package armory

import "fmt"

// SizeClass orders equipment by bulk. A slot accepts any weapon whose
// size class is at or below the slot's maximum.
type SizeClass int

const (
	SizeSmall SizeClass = iota + 1
	SizeMedium
	SizeLarge
)

func (s SizeClass) String() string {
	switch s {
	case SizeSmall:
		return "small"
	case SizeMedium:
		return "medium"
	case SizeLarge:
		return "large"
	default:
		return "unknown"
	}
}

// WeaponStats is the authoritative definition of one weapon.
type WeaponStats struct {
	ID   string
	Name string
	Size SizeClass
	// Damage dealt per validated hit.
	Damage int16
	// Knockback speed applied to the target in units per second.
	Knockback float64
	// HitstunMs is how long the target is staggered.
	HitstunMs int64
	// Reach is the melee range in units; zero for projectile weapons.
	Reach float64
	// ProjectileSpeed is units per second; zero for melee weapons.
	ProjectileSpeed float64
}

// Melee reports whether the weapon resolves hits by range rather than
// by projectile impact.
func (w WeaponStats) Melee() bool {
	return w.ProjectileSpeed == 0
}

// Slot is one equipment slot on a peer's loadout.
type Slot struct {
	ID      string
	MaxSize SizeClass
}

// WeaponUnarmed is the implicit fallback weapon every peer carries.
const WeaponUnarmed = "unarmed"

// Catalog holds the weapon and slot definitions. Immutable after creation.
type Catalog struct {
	weapons map[string]WeaponStats
	slots   map[string]Slot
}

func NewCatalog(weapons []WeaponStats, slots []Slot) (*Catalog, error) {
	c := &Catalog{
		weapons: make(map[string]WeaponStats, len(weapons)),
		slots:   make(map[string]Slot, len(slots)),
	}
	for _, w := range weapons {
		if _, ok := c.weapons[w.ID]; ok {
			return nil, fmt.Errorf("duplicate weapon id %s", w.ID)
		}
		c.weapons[w.ID] = w
	}
	if _, ok := c.weapons[WeaponUnarmed]; !ok {
		return nil, fmt.Errorf("catalog is missing the %s weapon", WeaponUnarmed)
	}
	for _, s := range slots {
		if _, ok := c.slots[s.ID]; ok {
			return nil, fmt.Errorf("duplicate slot id %s", s.ID)
		}
		c.slots[s.ID] = s
	}
	return c, nil
}

// Weapon looks up a weapon by id. An empty id resolves to unarmed.
func (c *Catalog) Weapon(id string) (WeaponStats, bool) {
	if id == "" {
		id = WeaponUnarmed
	}
	w, ok := c.weapons[id]
	return w, ok
}

// Unarmed returns the fallback weapon.
func (c *Catalog) Unarmed() WeaponStats {
	return c.weapons[WeaponUnarmed]
}

// Slot looks up an equipment slot by id.
func (c *Catalog) Slot(id string) (Slot, bool) {
	s, ok := c.slots[id]
	return s, ok
}

// DefaultCatalog returns the built-in weapon and slot set.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		[]WeaponStats{
			{ID: WeaponUnarmed, Name: "Unarmed", Size: SizeSmall, Damage: 5, Knockback: 4.0, HitstunMs: 100, Reach: 1.5},
			{ID: "shortsword", Name: "Shortsword", Size: SizeMedium, Damage: 18, Knockback: 8.0, HitstunMs: 250, Reach: 2.5},
			{ID: "warhammer", Name: "Warhammer", Size: SizeLarge, Damage: 35, Knockback: 20.0, HitstunMs: 600, Reach: 3.0},
			{ID: "throwing_knife", Name: "Throwing Knife", Size: SizeSmall, Damage: 10, Knockback: 2.0, HitstunMs: 100, ProjectileSpeed: 30.0},
			{ID: "crossbow", Name: "Crossbow", Size: SizeMedium, Damage: 25, Knockback: 6.0, HitstunMs: 300, ProjectileSpeed: 45.0},
		},
		[]Slot{
			{ID: "mainhand", MaxSize: SizeLarge},
			{ID: "offhand", MaxSize: SizeMedium},
			{ID: "belt", MaxSize: SizeSmall},
		},
	)
	if err != nil {
		panic(fmt.Sprintf("failed to build default catalog: %v", err))
	}
	return c
}
