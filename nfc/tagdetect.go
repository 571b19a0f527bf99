package nfc

// DetectedTagType represents detected tag type from ATR/commands
type DetectedTagType int

// Detected tag type constants for PC/SC detection
const (
	DetectedUnknown DetectedTagType = iota
	DetectedClassic1K
	DetectedClassic4K
	DetectedMini
	DetectedUltralight
	DetectedUltralightC
	DetectedDESFire
	DetectedISO14443_4
	DetectedFelica
)

// PC/SC part 3 standard byte for FeliCa (212/424 kbps)
const atrStandardFelica = 0x11

// ATR historical byte patterns for tag type detection
// These are found in the ATR returned by PC/SC readers
var atrPatterns = map[byte]DetectedTagType{
	0x01: DetectedClassic1K,
	0x02: DetectedClassic4K,
	0x03: DetectedUltralight,
	0x26: DetectedMini,
	0x3A: DetectedUltralightC,
	0x3B: DetectedFelica,
}

// Technology maps the detected type to the technology used to read it.
func (t DetectedTagType) Technology() Technology {
	switch t {
	case DetectedClassic1K, DetectedClassic4K, DetectedMini:
		return TechClassic
	case DetectedUltralight, DetectedUltralightC:
		return TechUltralight
	case DetectedDESFire:
		return TechDESFire
	case DetectedISO14443_4:
		return TechISODep
	case DetectedFelica:
		return TechFelica
	default:
		return TechUnknown
	}
}

func (t DetectedTagType) String() string {
	switch t {
	case DetectedClassic1K:
		return "MIFARE Classic 1K"
	case DetectedClassic4K:
		return "MIFARE Classic 4K"
	case DetectedMini:
		return "MIFARE Mini"
	case DetectedUltralight:
		return "MIFARE Ultralight"
	case DetectedUltralightC:
		return "MIFARE Ultralight C"
	case DetectedDESFire:
		return "MIFARE DESFire"
	case DetectedISO14443_4:
		return "ISO14443-4"
	case DetectedFelica:
		return "FeliCa"
	default:
		return "Unknown"
	}
}

// DetectTagTypeFromATR parses the ATR a PC/SC reader reports for a contactless card.
func DetectTagTypeFromATR(atr []byte) DetectedTagType {
	if len(atr) < 2 {
		return DetectedUnknown
	}

	// Common ATR formats for contactless cards:
	// 3B 8F 80 01 80 4F 0C A0 00 00 03 06 SS NN NN 00 00 00 00 YY
	//                                     ^^ standard, NN NN card name

	histStart := findHistoricalBytesStart(atr)
	if histStart < 0 || histStart >= len(atr) {
		return DetectedUnknown
	}

	histBytes := atr[histStart:]

	for i := 0; i < len(histBytes)-10; i++ {
		if histBytes[i] == 0x80 && i+10 < len(histBytes) {
			if histBytes[i+1] == 0x4F &&
				histBytes[i+3] == 0xA0 &&
				histBytes[i+4] == 0x00 &&
				histBytes[i+5] == 0x00 &&
				histBytes[i+6] == 0x03 &&
				histBytes[i+7] == 0x06 {
				if histBytes[i+8] == atrStandardFelica {
					return DetectedFelica
				}
				if t, ok := atrPatterns[histBytes[i+10]]; ok {
					return t
				}
			}
		}
	}

	// Readers report ISO14443-4 cards with a short ATR carrying T=1
	if containsISO14443_4Indicator(atr) {
		return DetectedISO14443_4
	}

	return DetectedUnknown
}

// findHistoricalBytesStart finds the start of historical bytes in ATR
func findHistoricalBytesStart(atr []byte) int {
	if len(atr) < 2 {
		return -1
	}

	// TS, T0, then interface bytes chained through TDi, then historical bytes
	ts := atr[0]
	if ts != 0x3B && ts != 0x3F {
		return -1
	}

	t0 := atr[1]
	numHistBytes := int(t0 & 0x0F)
	if numHistBytes == 0 {
		return -1
	}

	pos := 2
	td := t0

	for {
		if (td & 0x10) != 0 {
			pos++ // TAi present
		}
		if (td & 0x20) != 0 {
			pos++ // TBi present
		}
		if (td & 0x40) != 0 {
			pos++ // TCi present
		}
		if (td & 0x80) != 0 {
			if pos >= len(atr) {
				return -1
			}
			td = atr[pos]
			pos++
		} else {
			break
		}
	}

	if pos >= len(atr) {
		return -1
	}

	return pos
}

// containsISO14443_4Indicator reports whether any TDi byte of the ATR
// announces T=1, which is how PC/SC readers map the T=CL protocol.
func containsISO14443_4Indicator(atr []byte) bool {
	if len(atr) < 3 {
		return false
	}

	pos := 1
	td := atr[1]
	for td&0x80 != 0 {
		if td&0x10 != 0 {
			pos++
		}
		if td&0x20 != 0 {
			pos++
		}
		if td&0x40 != 0 {
			pos++
		}
		pos++
		if pos >= len(atr) {
			return false
		}
		td = atr[pos]
		if td&0x0F == 0x01 {
			return true
		}
	}
	return false
}

// DetectFromSAK classifies an ISO14443A target by its SAK byte. It is used by
// the libnfc back end, which sees the anticollision data directly.
func DetectFromSAK(sak byte) DetectedTagType {
	switch {
	case sak == 0x08 || sak == 0x88:
		return DetectedClassic1K
	case sak == 0x18:
		return DetectedClassic4K
	case sak == 0x09:
		return DetectedMini
	case sak == 0x00:
		return DetectedUltralight
	case sak&0x20 != 0:
		return DetectedISO14443_4
	default:
		return DetectedUnknown
	}
}
