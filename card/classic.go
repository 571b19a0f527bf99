package card

import (
	"bytes"
	"fmt"
)

// ClassicBlockSize is the size of a MIFARE Classic block.
const ClassicBlockSize = 16

// BlockType classifies a Classic block by its position.
type BlockType int

const (
	BlockData BlockType = iota
	BlockManufacturer
	BlockTrailer
)

func (t BlockType) String() string {
	switch t {
	case BlockManufacturer:
		return "manufacturer"
	case BlockTrailer:
		return "trailer"
	default:
		return "data"
	}
}

// ClassicCard is a parsed MIFARE Classic card.
type ClassicCard struct {
	Header
	Sectors []ClassicSector
}

// ClassicSector is one of *DataClassicSector, *UnauthorizedClassicSector or
// *InvalidClassicSector.
type ClassicSector interface {
	SectorIndex() int
	isClassicSector()
}

type DataClassicSector struct {
	Index  int
	Blocks []ClassicBlock
}

type UnauthorizedClassicSector struct {
	Index int
}

type InvalidClassicSector struct {
	Index int
	Error string
}

type ClassicBlock struct {
	Index int
	Type  BlockType
	Data  []byte
}

func (s *DataClassicSector) SectorIndex() int         { return s.Index }
func (s *UnauthorizedClassicSector) SectorIndex() int { return s.Index }
func (s *InvalidClassicSector) SectorIndex() int      { return s.Index }

func (*DataClassicSector) isClassicSector()         {}
func (*UnauthorizedClassicSector) isClassicSector() {}
func (*InvalidClassicSector) isClassicSector()      {}

// Block returns block i of the sector, or nil.
func (s *DataClassicSector) Block(i int) *ClassicBlock {
	if s == nil || i < 0 || i >= len(s.Blocks) {
		return nil
	}
	return &s.Blocks[i]
}

// Sector returns the sector with the given index, or nil.
func (c *ClassicCard) Sector(index int) ClassicSector {
	for _, s := range c.Sectors {
		if s.SectorIndex() == index {
			return s
		}
	}
	return nil
}

// DataSector returns the sector with the given index when it was read.
func (c *ClassicCard) DataSector(index int) (*DataClassicSector, bool) {
	s, ok := c.Sector(index).(*DataClassicSector)
	return s, ok
}

// BlockData returns the bytes of block b in sector s, or nil.
func (c *ClassicCard) BlockData(s, b int) []byte {
	sector, ok := c.DataSector(s)
	if !ok {
		return nil
	}
	if block := sector.Block(b); block != nil {
		return block.Data
	}
	return nil
}

// AllUnauthorized reports whether the card has sectors and none of them
// could be authenticated.
func (c *ClassicCard) AllUnauthorized() bool {
	if len(c.Sectors) == 0 {
		return false
	}
	for _, s := range c.Sectors {
		if _, ok := s.(*UnauthorizedClassicSector); !ok {
			return false
		}
	}
	return true
}

func parseClassic(raw *RawClassicCard) *ClassicCard {
	out := &ClassicCard{Header: raw.Header.clone(), Sectors: make([]ClassicSector, 0, len(raw.Sectors))}
	for _, rs := range raw.Sectors {
		out.Sectors = append(out.Sectors, parseClassicSector(rs))
	}
	return out
}

func parseClassicSector(rs RawClassicSector) ClassicSector {
	switch rs.Outcome {
	case OutcomeUnauthorized:
		return &UnauthorizedClassicSector{Index: rs.Index}
	case OutcomeInvalid:
		return &InvalidClassicSector{Index: rs.Index, Error: rs.Error}
	case OutcomeData:
	default:
		return &InvalidClassicSector{Index: rs.Index, Error: fmt.Sprintf("unknown outcome %d", int(rs.Outcome))}
	}

	sector := &DataClassicSector{Index: rs.Index, Blocks: make([]ClassicBlock, 0, len(rs.Blocks))}
	for i, rb := range rs.Blocks {
		if len(rb.Data) != ClassicBlockSize {
			return &InvalidClassicSector{
				Index: rs.Index,
				Error: fmt.Sprintf("block %d: want %d bytes, got %d", rb.Index, ClassicBlockSize, len(rb.Data)),
			}
		}
		blockType := BlockData
		switch {
		case rs.Index == 0 && rb.Index == 0:
			blockType = BlockManufacturer
		case i == len(rs.Blocks)-1:
			blockType = BlockTrailer
		}
		sector.Blocks = append(sector.Blocks, ClassicBlock{Index: rb.Index, Type: blockType, Data: bytes.Clone(rb.Data)})
	}
	return sector
}
