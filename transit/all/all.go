// Package all assembles the default transit registry.
package all

import (
	"github.com/nedpals/davi-transit/transit"
	"github.com/nedpals/davi-transit/transit/edy"
	"github.com/nedpals/davi-transit/transit/ezlink"
	"github.com/nedpals/davi-transit/transit/locked"
	"github.com/nedpals/davi-transit/transit/myki"
	"github.com/nedpals/davi-transit/transit/nextfare"
	"github.com/nedpals/davi-transit/transit/opal"
	"github.com/nedpals/davi-transit/transit/suica"
)

// Factories returns every built-in factory in resolution order. Locked-card
// catch-alls come last within their card type.
func Factories() []transit.Factory {
	return []transit.Factory{
		// MIFARE Classic
		nextfare.Factory{},
		locked.ClassicFactory{},

		// DESFire
		opal.Factory{},
		myki.Factory{},
		locked.DesfireFactory{},

		// CEPAS
		ezlink.Factory{},

		// FeliCa
		suica.Factory{},
		edy.Factory{},
	}
}

// Registry returns a new registry holding Factories.
func Registry() *transit.Registry {
	return transit.NewRegistry(Factories()...)
}
