package config

import (
	"time"

	"github.com/talgya/atlas-live/internal/atlas"
	"github.com/talgya/atlas-live/internal/broadcast"
	"github.com/talgya/atlas-live/internal/memory"
)

// Default returns a runnable configuration with a small built-in catalogue.
func Default() Config {
	return Config{
		Heartbeat: Heartbeat{
			Interval:        Duration(time.Second),
			MaxSilenceTicks: 7,
			StartDelayTicks: 2,
			NarrateEvery:    3,
		},
		Pacing: Pacing{
			Window:  Duration(10 * time.Minute),
			Voice:   0.35,
			Visual:  0.45,
			Silence: 0.20,
		},
		Generation: Generation{
			Temperature:  0.9,
			Timeout:      Duration(30 * time.Second),
			MaxPerMinute: 20,
		},
		TTS: TTS{
			Timeout:   Duration(20 * time.Second),
			MsPerChar: 60,
			Voices: map[string]string{
				string(broadcast.RoleA): "warm-alto",
				string(broadcast.RoleB): "bright-tenor",
			},
		},
		Dialogue: Dialogue{
			TagA:  "HOST",
			TagB:  "GUEST",
			NameA: "Mara",
			NameB: "Teo",
			Topics: []string{
				"the best street food you have ever eaten",
				"how maps lie about the size of countries",
				"a train journey worth taking twice",
				"words that do not translate",
				"the strangest museum on the route",
			},
			Seeds: defaultSeeds(),
		},
		Memory: Memory{
			HardCap:             memory.DefaultHardCap,
			RecentCap:           memory.DefaultRecentCap,
			ReflectionThreshold: 0.7,
		},
		Visual: Visual{
			Seed:   42,
			Radius: 2.5,
		},
		Storage: Storage{
			Path: "atlas.db",
		},
		API: API{
			Port:           8080,
			TriggerPerHour: 30,
		},
		Weather: Weather{
			Timeout: Duration(10 * time.Second),
		},
		Phrases:   defaultPhrases(),
		Countries: defaultCountries(),
	}
}

func line(role broadcast.Role, text string) broadcast.DialogueLine {
	return broadcast.DialogueLine{Role: role, Text: text}
}

func defaultSeeds() []broadcast.Script {
	a, b := broadcast.RoleA, broadcast.RoleB
	return []broadcast.Script{
		{
			line(a, "Quiet stretch. Want to guess where the next stop is?"),
			line(b, "Somewhere with mountains. It is always somewhere with mountains."),
		},
		{
			line(a, "I keep a list of every breakfast on this trip."),
			line(b, "Of course you do. How long is it?"),
			line(a, "Long enough that I need a second notebook."),
		},
		{
			line(b, "Do you ever miss home on the road?"),
			line(a, "Only when the coffee is bad."),
		},
		{
			line(a, "The map is doing that slow drift again."),
			line(b, "Let it wander. The best places are the ones we did not plan."),
		},
		{
			line(b, "Quick question for everyone listening: window seat or aisle?"),
			line(a, "Window. Every single time."),
		},
	}
}

func defaultPhrases() map[string][]string {
	return map[string][]string{
		memory.CategoryIntro: {
			"Welcome to {COUNTRY}.",
			"We have arrived in {COUNTRY}.",
			"Here we are, {COUNTRY}.",
			"Good to be in {COUNTRY}.",
			"Say hello to {COUNTRY}.",
		},
		memory.CategoryConnector: {
			"Did you know?",
			"Here is something curious.",
			"A small surprise:",
			"One more thing worth knowing.",
		},
		memory.CategoryLoop: {
			"{COUNTRY}: {FACT}",
			"Now drifting over {COUNTRY}. {FACT}",
			"{COUNTRY}, from above. {FACT}",
		},
		memory.CategoryReflection: {
			"Three days in {COUNTRY}, and it already feels like leaving home.",
			"{COUNTRY} was kinder than we expected.",
			"We will be back to {COUNTRY}. That much is certain.",
		},
	}
}

func defaultCountries() []atlas.Country {
	return []atlas.Country{
		{
			ID: "jp", Name: "Japan", TimeZone: "Asia/Tokyo", Lat: 36.2, Lon: 138.3,
			Facts: []string{
				"Japan is an archipelago of more than fourteen thousand islands.",
				"There is roughly one vending machine for every thirty people.",
				"Some train stations play a short melody before each departure.",
			},
			Recommendations: []string{
				"Find a neighbourhood sento and take a long evening bath.",
				"Eat breakfast at a station kiosk with the commuters.",
			},
		},
		{
			ID: "pt", Name: "Portugal", TimeZone: "Europe/Lisbon", Lat: 39.4, Lon: -8.2,
			Facts: []string{
				"Lisbon was rebuilt on a grid after the earthquake of 1755.",
				"The treaty of Windsor with England is the oldest alliance still in force.",
				"Cork oak forests here supply about half of the world's cork.",
			},
			Recommendations: []string{
				"Listen to fado in a small Alfama tavern after dark.",
				"Ride tram 28 early, before the crowds.",
			},
		},
		{
			ID: "pe", Name: "Peru", TimeZone: "America/Lima", Lat: -9.2, Lon: -75.0,
			Facts: []string{
				"The Andes here hold thousands of native potato varieties.",
				"Lake Titicaca sits at about 3,800 metres above sea level.",
				"The Nazca lines are best understood from the air.",
			},
			Recommendations: []string{
				"Order ceviche at lunch, never at dinner, as locals do.",
			},
		},
		{
			ID: "ma", Name: "Morocco", TimeZone: "Africa/Casablanca", Lat: 31.8, Lon: -7.1,
			Facts: []string{
				"The University of al-Qarawiyyin in Fez dates from the ninth century.",
				"The Atlas mountains separate the coast from the Sahara.",
			},
			Recommendations: []string{
				"Share a pot of mint tea and let it be poured from a height.",
			},
		},
		{
			ID: "is", Name: "Iceland", TimeZone: "Atlantic/Reykjavik", Lat: 64.9, Lon: -19.0,
			Facts: []string{
				"Iceland has no native mosquitoes.",
				"Most homes are heated with geothermal water.",
			},
			Recommendations: []string{
				"Swim in a public geothermal pool like everyone else in town.",
			},
		},
	}
}
