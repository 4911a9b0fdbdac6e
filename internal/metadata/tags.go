package metadata

import (
	"strings"

	"github.com/lvcoi/ytup/internal/model"
)

// augmentedTags is how many of the proposed tags receive misspelled variants.
const augmentedTags = 3

// CommonMisspellings maps a lower-cased term to the variants appended for it.
var CommonMisspellings = map[string][]string{
	"tutorial":      {"tutoral", "tuturial", "tutoriol", "tuturials"},
	"gaming":        {"gamminng", "gameing", "gaiming", "gamming", "gaminng"},
	"vlog":          {"vlogg", "vloq", "vloug", "vllog", "vloog"},
	"review":        {"revue", "reeview", "reviw", "revu", "reviue"},
	"challenge":     {"chalenge", "chalange", "challange", "challeng", "challege"},
	"minecraft":     {"mincraft", "minecaft", "minecraf", "minecrafte", "minecratf"},
	"python":        {"pyhton", "pythoon", "pythn", "phyton", "pythoon"},
	"science":       {"scinece", "sciense", "scince", "sceince", "sciens"},
	"education":     {"educaion", "eduction", "educashun", "edukatoin", "educcation"},
	"fitness":       {"fitnes", "fitniss", "fitnees", "fittness", "fitnnes"},
	"sports":        {"sprots", "spors", "sportz", "sporst", "spourts"},
	"entertainment": {"entartainment", "entertainmnt", "entertaiment", "entetainment", "entertanment"},
	"music":         {"musick", "musci", "musoc", "musik", "mucsic"},
	"comedy":        {"commedy", "comedie", "commedy", "komedy", "commdedy"},
	"technology":    {"tecnology", "techology", "technolgy", "tecknology", "technologie"},
	"travel":        {"traval", "travle", "travele", "trvel", "treval"},
	"animals":       {"animels", "animasl", "anmials", "animuls", "anamals"},
	"recipes":       {"recipies", "recepes", "recepies", "reciepes", "resipes"},
	"workout":       {"workot", "workut", "wrkout", "worcout", "wokout"},
	"basketball":    {"baskettball", "basketbal", "baskeball", "basketboll", "basketbal"},
	"skateboarding": {"skatebording", "skatboarding", "sk8boarding", "sk8bordng", "sk8bording"},
	"reaction":      {"reacion", "recation", "reacton", "reacshun", "reactionn"},
	"adventure":     {"adveture", "advenure", "adventur", "advanture", "advantuer"},
	"streaming":     {"streming", "streeming", "streamin", "stremming", "streamng"},
}

// AugmentTags appends misspelled variants of the first few tags, then drops
// empty entries and duplicates (first occurrence wins) and caps the result at
// model.MaxTags.
func AugmentTags(proposed []string) []string {
	tags := make([]string, 0, len(proposed)+2*augmentedTags)
	for _, t := range proposed {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}

	n := len(tags)
	if n > augmentedTags {
		n = augmentedTags
	}
	for _, tag := range tags[:n] {
		if variants, ok := CommonMisspellings[strings.ToLower(tag)]; ok {
			tags = append(tags, variants...)
			continue
		}
		runes := []rune(tag)
		tags = append(tags, tag+"ss", string(runes[:len(runes)-1]))
	}

	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, model.MaxTags)
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
		if len(out) == model.MaxTags {
			break
		}
	}
	return out
}
