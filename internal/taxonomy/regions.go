package taxonomy

// The two providers encode geography differently: SCB uses NUTS codes
// (SE11, SE12, ...) while the employment service tags ads with numeric
// county codes (01, 03, ...). Both fold onto the eight national areas
// (riksområden) plus the country total, keyed here by canonical name.

type regionEntry struct {
	NUTSCode string
	Name     string
}

// nutsRegions is the canonical region set: 8 areas + national total.
var nutsRegions = []regionEntry{
	{"SE", "Sweden"},
	{"SE11", "Stockholm"},
	{"SE12", "East-Central Sweden"},
	{"SE21", "Småland and islands"},
	{"SE22", "South Sweden"},
	{"SE23", "West Sweden"},
	{"SE31", "North-Central Sweden"},
	{"SE32", "Central Norrland"},
	{"SE33", "Upper Norrland"},
}

// countyToNUTS folds the 21 county codes used by the employment service
// onto the national areas.
var countyToNUTS = map[string]string{
	"01": "SE11", // Stockholm
	"03": "SE12", // Uppsala
	"04": "SE12", // Södermanland
	"05": "SE12", // Östergötland
	"18": "SE12", // Örebro
	"19": "SE12", // Västmanland
	"06": "SE21", // Jönköping
	"07": "SE21", // Kronoberg
	"08": "SE21", // Kalmar
	"09": "SE21", // Gotland
	"10": "SE22", // Blekinge
	"12": "SE22", // Skåne
	"13": "SE23", // Halland
	"14": "SE23", // Västra Götaland
	"17": "SE31", // Värmland
	"20": "SE31", // Dalarna
	"21": "SE31", // Gävleborg
	"22": "SE32", // Västernorrland
	"23": "SE32", // Jämtland
	"24": "SE33", // Västerbotten
	"25": "SE33", // Norrbotten
}
