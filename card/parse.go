package card

import (
	"bytes"
	"fmt"
)

// Parse turns a raw capture into a typed card. It performs no I/O. Failures
// inside one sector, file or purse become invalid markers on that region; an
// error is returned only for a nil or unknown card.
func Parse(raw RawCard) (Card, error) {
	switch r := raw.(type) {
	case *RawClassicCard:
		if r == nil {
			break
		}
		return parseClassic(r), nil
	case *RawUltralightCard:
		if r == nil {
			break
		}
		return parseUltralight(r), nil
	case *RawDesfireCard:
		if r == nil {
			break
		}
		return parseDesfire(r), nil
	case *RawCEPASCard:
		if r == nil {
			break
		}
		return parseCEPAS(r), nil
	case *RawFelicaCard:
		if r == nil {
			break
		}
		return parseFelica(r), nil
	default:
		return nil, fmt.Errorf("parse raw card: unexpected type %T", raw)
	}
	return nil, fmt.Errorf("parse raw card: nil %T", raw)
}

func parseUltralight(raw *RawUltralightCard) *UltralightCard {
	out := &UltralightCard{Header: raw.Header.clone(), Error: raw.Error, Pages: make([]UltralightPage, 0, len(raw.Pages))}
	for _, p := range raw.Pages {
		out.Pages = append(out.Pages, UltralightPage{Index: p.Index, Data: bytes.Clone(p.Data)})
	}
	return out
}

func parseFelica(raw *RawFelicaCard) *FelicaCard {
	out := &FelicaCard{Header: raw.Header.clone(), PMm: bytes.Clone(raw.PMm), Systems: make([]FelicaSystem, 0, len(raw.Systems))}
	for _, rs := range raw.Systems {
		sys := FelicaSystem{Code: rs.Code, Services: make([]FelicaService, 0, len(rs.Services))}
		for _, rsv := range rs.Services {
			svc := FelicaService{Code: rsv.Code, Blocks: make([]FelicaBlock, 0, len(rsv.Blocks))}
			for _, b := range rsv.Blocks {
				svc.Blocks = append(svc.Blocks, FelicaBlock{Address: b.Address, Data: bytes.Clone(b.Data)})
			}
			sys.Services = append(sys.Services, svc)
		}
		out.Systems = append(out.Systems, sys)
	}
	return out
}
