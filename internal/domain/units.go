package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Unit keys identify the bookable sub-components of a property: "r2" is
// room 2 sold whole, "r1_b0" is bed 0 of room 1. A property without rooms
// has the single synthetic unit "whole".
const WholeUnit = "whole"

func RoomUnit(room int) string {
	return "r" + strconv.Itoa(room)
}

func BedUnit(room, bed int) string {
	return "r" + strconv.Itoa(room) + "_b" + strconv.Itoa(bed)
}

// ParseUnit splits a unit key into its room index and optional bed index.
func ParseUnit(key string) (room int, bed int, hasBed bool, err error) {
	if !strings.HasPrefix(key, "r") {
		return 0, 0, false, fmt.Errorf("malformed unit key %q", key)
	}
	rest := strings.TrimPrefix(key, "r")
	if i := strings.Index(rest, "_b"); i >= 0 {
		room, err = strconv.Atoi(rest[:i])
		if err != nil {
			return 0, 0, false, fmt.Errorf("malformed unit key %q", key)
		}
		bed, err = strconv.Atoi(rest[i+2:])
		if err != nil {
			return 0, 0, false, fmt.Errorf("malformed unit key %q", key)
		}
		return room, bed, true, nil
	}
	room, err = strconv.Atoi(rest)
	if err != nil {
		return 0, 0, false, fmt.Errorf("malformed unit key %q", key)
	}
	return room, 0, false, nil
}

// AllUnits enumerates every bookable unit of the property in room order.
func (p *Property) AllUnits() []string {
	if len(p.Rooms) == 0 {
		return []string{WholeUnit}
	}
	var units []string
	for i, room := range p.Rooms {
		if room.Beds > 0 {
			for b := 0; b < room.Beds; b++ {
				units = append(units, BedUnit(i, b))
			}
			continue
		}
		units = append(units, RoomUnit(i))
	}
	return units
}

// FullyBooked reports whether every unit of the property is covered by
// BookedUnits.
func (p *Property) FullyBooked() bool {
	booked := make(map[string]bool, len(p.BookedUnits))
	for _, u := range p.BookedUnits {
		booked[u] = true
	}
	for _, u := range p.AllUnits() {
		if !booked[u] {
			return false
		}
	}
	return true
}

// SelectionPrice sums the per-unit price of the requested selections. A
// bed selection contributes the room's bed price, a room selection the
// room's price. Selections referencing rooms the property does not have
// are returned in skipped rather than failing the whole request.
func (p *Property) SelectionPrice(selections []string) (total float64, skipped []string) {
	for _, key := range selections {
		room, _, hasBed, err := ParseUnit(key)
		if err != nil || room < 0 || room >= len(p.Rooms) {
			skipped = append(skipped, key)
			continue
		}
		if hasBed {
			total += p.Rooms[room].BedPrice
		} else {
			total += p.Rooms[room].Price
		}
	}
	return total, skipped
}

// ConflictingUnits intersects the requested selections with the units
// already booked.
func (p *Property) ConflictingUnits(selections []string) []string {
	booked := make(map[string]bool, len(p.BookedUnits))
	for _, u := range p.BookedUnits {
		booked[u] = true
	}
	var conflicts []string
	for _, key := range selections {
		if booked[key] {
			conflicts = append(conflicts, key)
		}
	}
	return conflicts
}

// MergeBookedUnits adds the selections to BookedUnits, dropping
// duplicates so a replayed merge stays idempotent.
func (p *Property) MergeBookedUnits(selections []string) {
	seen := make(map[string]bool, len(p.BookedUnits))
	for _, u := range p.BookedUnits {
		seen[u] = true
	}
	for _, u := range selections {
		if !seen[u] {
			p.BookedUnits = append(p.BookedUnits, u)
			seen[u] = true
		}
	}
}

// ReleaseBookedUnits removes the selections from BookedUnits.
func (p *Property) ReleaseBookedUnits(selections []string) {
	release := make(map[string]bool, len(selections))
	for _, u := range selections {
		release[u] = true
	}
	kept := p.BookedUnits[:0]
	for _, u := range p.BookedUnits {
		if !release[u] {
			kept = append(kept, u)
		}
	}
	p.BookedUnits = kept
}
