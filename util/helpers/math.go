package helpers

import "golang.org/x/exp/constraints"

func Min[T constraints.Ordered](numbers ...T) T {
	var min T = numbers[0]
	for _, n := range numbers {
		if n < min {
			min = n
		}
	}
	return min
}

// Slots returns how many slots of slotSize fit into space,
// 0 when space is not positive.
func Slots[T constraints.Integer](space, slotSize T) T {
	if space <= 0 || slotSize <= 0 {
		return 0
	}
	return space / slotSize
}

// GetBit reports whether bit at position pos of b is set.
func GetBit(b uint8, pos int) bool {
	return b&(1<<pos) != 0
}

// SetBit sets or clears bit at position pos of b.
func SetBit(b *uint8, pos int, v bool) {
	if v {
		*b |= 1 << pos
	} else {
		*b &^= 1 << pos
	}
}
