package spatial

import (
	"encoding/json"
	"fmt"
)

// ParseStops decodes a {"Stop name": [lat, lng], ...} document.
// Entries with fewer than two numbers are skipped.
func ParseStops(data []byte) (map[string][2]float64, error) {
	var raw map[string][]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode stops: %w", err)
	}

	stops := make(map[string][2]float64, len(raw))
	for name, coords := range raw {
		if len(coords) < 2 {
			continue
		}
		stops[name] = [2]float64{coords[0], coords[1]}
	}
	return stops, nil
}

// KnownStops are surveyed coordinates of frequently used stops in Cancún.
// They cover catalogs that list stops by name only.
var KnownStops = map[string][2]float64{
	"OXXO Villas Otoch Paraíso": {21.1685, -86.885},
	"Chedraui Lakin":            {21.165, -86.879},
	"Av. Kabah":                 {21.16, -86.845},
	"Plaza Las Américas":        {21.141, -86.843},
	"Entrada Zona Hotelera":     {21.153, -86.815},
	"Zona Hotelera":             {21.135, -86.768},
	"La Rehoyada":               {21.1619, -86.8515},
	"El Crucero":                {21.1576, -86.8269},
	"Av. Tulum Norte":           {21.165, -86.823},
	"Playa del Niño":            {21.195, -86.81},
	"Muelle Ultramar":           {21.207, -86.802},
	"Terminal ADO Centro":       {21.1586, -86.8259},
	"Aeropuerto T2":             {21.0417, -86.8761},
	"Aeropuerto T3":             {21.041, -86.8755},
	"Aeropuerto T4":             {21.04, -86.875},
	"Playa del Carmen Centro":   {20.6296, -87.0739},
	"Villas Otoch Paraíso":      {21.1685, -86.885},
	"Villas Otoch":              {21.1685, -86.885},
	"Hospital General":          {21.15, -86.84},
	"Mercado 28":                {21.162, -86.828},
}
