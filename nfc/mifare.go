package nfc

import "fmt"

// ClassicBlockSize is the size of a MIFARE Classic block in bytes.
const ClassicBlockSize = 16

// ClassicSectorCount returns the number of sectors of a Classic card.
func ClassicSectorCount(t DetectedTagType) int {
	switch t {
	case DetectedMini:
		return 5
	case DetectedClassic4K:
		return 40
	default:
		return 16
	}
}

// ClassicBlockCountInSector returns the number of blocks in sector.
// Sectors 0-31 have 4 blocks each, sectors 32-39 of a 4K card have 16.
func ClassicBlockCountInSector(sector int) int {
	if sector < 32 {
		return 4
	}
	return 16
}

// ClassicSectorToBlock returns the first block of sector.
func ClassicSectorToBlock(sector int) int {
	if sector < 32 {
		return sector * 4
	}
	// 32 sectors * 4 blocks precede the large sectors
	return 128 + (sector-32)*16
}

// ClassicTrailerBlock returns the sector trailer block of sector.
func ClassicTrailerBlock(sector int) int {
	return ClassicSectorToBlock(sector) + ClassicBlockCountInSector(sector) - 1
}

// UltralightPageCount returns the page count of an Ultralight variant.
func UltralightPageCount(t DetectedTagType) int {
	if t == DetectedUltralightC {
		return 48
	}
	return 16
}

// ClassicSectorBlockToLinear converts a sector-relative block to an absolute block number.
func ClassicSectorBlockToLinear(t DetectedTagType, sector, block int) (int, error) {
	count := ClassicSectorCount(t)
	if sector < 0 || sector >= count {
		return 0, fmt.Errorf("invalid sector %d for %s (0-%d)", sector, t, count-1)
	}
	blocks := ClassicBlockCountInSector(sector)
	if block < 0 || block >= blocks {
		return 0, fmt.Errorf("invalid block %d for sector %d in %s (0-%d)", block, sector, t, blocks-1)
	}
	return ClassicSectorToBlock(sector) + block, nil
}
