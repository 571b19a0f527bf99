package reader

import (
	"context"

	"go.uber.org/zap"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/nfc"
)

// FeliCa command and response codes.
const (
	felicaCmdPolling               = 0x00
	felicaRespPolling              = 0x01
	felicaCmdReadWithoutEncryption = 0x06
	felicaCmdSearchServiceCode     = 0x0A
	felicaRespSearchServiceCode    = 0x0B
	felicaCmdRequestSystemCode     = 0x0C
)

// Well-known system and service codes.
const (
	FelicaSystemAny          uint16 = 0xFFFF
	FelicaSystemOctopus      uint16 = 0x8008
	FelicaServiceOctopus     uint16 = 0x0117
	FelicaSystemShenzhenTong uint16 = 0x8005
	FelicaServiceShenzhen    uint16 = 0x0118

	// felicaMaxBlock is the highest block address read in one service.
	felicaMaxBlock = 0xFF
)

// felicaMagicSystems are polled when the card does not enumerate its systems.
var felicaMagicSystems = []struct {
	system  uint16
	service uint16
}{
	{FelicaSystemOctopus, FelicaServiceOctopus},
	{FelicaSystemShenzhenTong, FelicaServiceShenzhen},
}

// felicaProtocol builds FeliCa frames. Frames start at the command code; the
// tag adds the length byte.
type felicaProtocol struct {
	tag nfc.FelicaTag
	idm []byte
}

// transceive returns nil for a card that did not answer. Only channel errors
// are returned.
func (p *felicaProtocol) transceive(frame []byte) ([]byte, error) {
	resp, err := p.tag.Transceive(frame)
	if err != nil {
		if nfc.IsChannelError(err) {
			return nil, err
		}
		return nil, nil
	}
	return resp, nil
}

func (p *felicaProtocol) command(code byte, params ...byte) []byte {
	frame := make([]byte, 0, 1+len(p.idm)+len(params))
	frame = append(frame, code)
	frame = append(frame, p.idm...)
	return append(frame, params...)
}

// polling selects systemCode and returns its PMm, or nil when no system
// answered. The IDm of the answering system replaces the current one.
func (p *felicaProtocol) polling(systemCode uint16) ([]byte, error) {
	resp, err := p.transceive([]byte{felicaCmdPolling, byte(systemCode >> 8), byte(systemCode), 0x01, 0x00})
	if err != nil || len(resp) < 17 || resp[0] != felicaRespPolling {
		return nil, err
	}
	p.idm = append([]byte(nil), resp[1:9]...)
	return append([]byte(nil), resp[9:17]...), nil
}

func (p *felicaProtocol) systemCodes() ([]uint16, error) {
	resp, err := p.transceive(p.command(felicaCmdRequestSystemCode))
	if err != nil || len(resp) < 10 {
		return nil, err
	}
	count := int(resp[9])
	codes := make([]uint16, 0, count)
	for i := 0; i < count; i++ {
		off := 10 + i*2
		if off+2 > len(resp) {
			break
		}
		codes = append(codes, uint16(resp[off])|uint16(resp[off+1])<<8)
	}
	return codes, nil
}

// serviceCodes walks the service index of the selected system. Area entries
// are skipped.
func (p *felicaProtocol) serviceCodes() ([]uint16, error) {
	var codes []uint16
	for index := 1; index <= 0xFFFF; index++ {
		resp, err := p.transceive(p.command(felicaCmdSearchServiceCode, byte(index), byte(index>>8)))
		if err != nil {
			return nil, err
		}
		if len(resp) < 9 || resp[0] != felicaRespSearchServiceCode {
			break
		}

		data := resp[9:]
		if len(data) != 2 && len(data) != 4 {
			break
		}
		if data[0] == 0xFF && data[1] == 0xFF {
			break
		}
		if len(data) == 2 {
			codes = append(codes, uint16(data[0])|uint16(data[1])<<8)
		}
	}
	return codes, nil
}

// readBlock returns the 16 bytes at addr, or nil when the card refused.
func (p *felicaProtocol) readBlock(serviceCode uint16, addr int) ([]byte, error) {
	resp, err := p.transceive(p.command(felicaCmdReadWithoutEncryption,
		0x01, byte(serviceCode), byte(serviceCode>>8), 0x01, 0x80, byte(addr)))
	if err != nil || len(resp) < 11 || resp[9] != 0x00 || len(resp) < 13 {
		return nil, err
	}
	count := int(resp[11])
	if count < 1 || len(resp) < 12+count*16 {
		return nil, nil
	}
	return append([]byte(nil), resp[12:28]...), nil
}

// FelicaReader reads every system and service a FeliCa card will list.
type FelicaReader struct {
	opts   Options
	logger *zap.Logger
}

func NewFelicaReader(opts Options) *FelicaReader {
	return &FelicaReader{opts: opts, logger: opts.logger()}
}

// Read connects tag and reads the unencrypted blocks of every service.
func (r *FelicaReader) Read(ctx context.Context, tag nfc.FelicaTag) (*card.RawFelicaCard, error) {
	if err := connect(tag, "ReadFelica"); err != nil {
		return nil, err
	}
	defer closeTag(tag, r.logger)

	return r.read(ctx, tag)
}

func (r *FelicaReader) read(ctx context.Context, tag nfc.FelicaTag) (*card.RawFelicaCard, error) {
	proto := &felicaProtocol{tag: felicaContext{FelicaTag: tag, ctx: ctx}, idm: append([]byte(nil), tag.ID()...)}
	raw := &card.RawFelicaCard{
		Header:  card.NewHeader(tag.ID(), r.opts.now()),
		PMm:     tag.PMm(),
		Systems: make([]card.RawFelicaSystem, 0),
	}

	codes, err := proto.systemCodes()
	if err != nil {
		return nil, err
	}

	// Some cards answer polling for a system but will not enumerate it.
	magic := make(map[uint16]uint16)
	if len(codes) == 0 {
		for _, m := range felicaMagicSystems {
			pmm, err := proto.polling(m.system)
			if err != nil {
				return nil, err
			}
			if pmm != nil {
				r.logger.Debug("Magic system answered", zap.Uint16("system", m.system))
				codes = append(codes, m.system)
				magic[m.system] = m.service
			}
		}
	}

	first := FelicaSystemAny
	if len(codes) > 0 {
		first = codes[0]
	}
	pmm, err := proto.polling(first)
	if err != nil {
		return nil, err
	}
	if pmm != nil {
		raw.PMm = pmm
	}

	for _, code := range codes {
		if err := checkContext(ctx, "ReadFelica"); err != nil {
			return nil, err
		}

		system, err := r.readSystem(ctx, proto, code, magic)
		if err != nil {
			return nil, err
		}
		raw.Systems = append(raw.Systems, system)
	}

	return raw, nil
}

func (r *FelicaReader) readSystem(ctx context.Context, proto *felicaProtocol, code uint16, magic map[uint16]uint16) (card.RawFelicaSystem, error) {
	system := card.RawFelicaSystem{Code: code, Services: make([]card.RawFelicaService, 0)}

	if _, err := proto.polling(code); err != nil {
		return system, err
	}

	var services []uint16
	if svc, ok := magic[code]; ok {
		services = []uint16{svc}
	} else {
		var err error
		if services, err = proto.serviceCodes(); err != nil {
			return system, err
		}
	}

	for _, svc := range services {
		if err := checkContext(ctx, "ReadFelica"); err != nil {
			return system, err
		}
		if _, err := proto.polling(code); err != nil {
			return system, err
		}

		var blocks []card.RawFelicaBlock
		for addr := 0; addr <= felicaMaxBlock; addr++ {
			data, err := proto.readBlock(svc, addr)
			if err != nil {
				return system, err
			}
			if data == nil {
				break
			}
			blocks = append(blocks, card.RawFelicaBlock{Address: addr, Data: data})
		}

		r.logger.Debug("Service read",
			zap.Uint16("system", code),
			zap.Uint16("service", svc),
			zap.Int("blocks", len(blocks)))
		if len(blocks) > 0 {
			system.Services = append(system.Services, card.RawFelicaService{Code: svc, Blocks: blocks})
		}
	}
	return system, nil
}
