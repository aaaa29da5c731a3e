package classify

// Canonical labels produced by the classifier.
const (
	LabelPlastic     = "plastic"
	LabelOilSpill    = "oil_spill"
	LabelMarineTrash = "marine_trash"
	LabelCardboard   = "cardboard"
	LabelPaper       = "paper"
	LabelMetal       = "metal"
	LabelGlass       = "glass"
	LabelCleanWater  = "clean_water"
	LabelNoWaste     = "no_waste"
	LabelUnknown     = "unknown"
	LabelFallback    = "other_solid_waste"
)

// Info carries the display attributes for one pollution label.
type Info struct {
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

var infoMap = map[string]Info{
	LabelPlastic:     {Name: "Plastic Pollution", Icon: "🥤", Color: "#ef4444"},
	LabelOilSpill:    {Name: "Oil Spill", Icon: "🛢️", Color: "#1f2937"},
	LabelMarineTrash: {Name: "Marine Trash", Icon: "⚓", Color: "#0ea5e9"},
	LabelCardboard:   {Name: "Cardboard Waste", Icon: "📦", Color: "#d97706"},
	LabelPaper:       {Name: "Paper Waste", Icon: "📄", Color: "#9ca3af"},
	LabelMetal:       {Name: "Metal Waste", Icon: "⚙️", Color: "#6b7280"},
	LabelGlass:       {Name: "Glass Waste", Icon: "🍾", Color: "#10b981"},
	LabelNoWaste:     {Name: "Clean Water", Icon: "💧", Color: "#3b82f6"},
	LabelUnknown:     {Name: "Unknown", Icon: "❓", Color: "#6b7280"},
	LabelFallback:    {Name: "Solid Waste", Icon: "🗑️", Color: "#92400e"},
}

// InfoFor returns the display attributes for a label, falling back to the
// generic solid waste entry for anything unrecognised.
func InfoFor(label string) Info {
	if info, ok := infoMap[label]; ok {
		return info
	}
	return infoMap[LabelFallback]
}

// NormalizeLabel maps raw model classes onto the labels reports carry.
// The vision model distinguishes clean water as its own class; reports
// treat it as the absence of waste.
func NormalizeLabel(label string) string {
	if label == LabelCleanWater {
		return LabelNoWaste
	}
	return label
}
