package db

import (
	"strings"

	"github.com/lvcoi/ytup/internal/model"
)

// DefaultCategory is returned when no keyword matches an available category.
const DefaultCategory = "Entertainment"

type categoryKeywords struct {
	name     string
	keywords map[string]struct{}
}

func keywordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}

// categoryTable is scanned in order, so an earlier category wins a keyword
// shared with a later one ("tutorial" is Howto & Style before Education).
var categoryTable = []categoryKeywords{
	{"Howto & Style", keywordSet("tutorial", "hack", "DIY", "build", "repair", "style", "makeup",
		"fashion", "design", "tips", "how-to", "guide", "craft", "sewing",
		"decor", "home improvement", "organization", "skincare", "beauty")},
	{"Gaming", keywordSet("minecraft", "speedrun", "gameplay", "stream", "fps", "rpg",
		"walkthrough", "multiplayer", "pvp", "strategy", "battle royale",
		"esports", "console", "playstation", "xbox", "nintendo", "gaming",
		"video games", "cheats", "mods", "quests", "sandbox")},
	{"Education", keywordSet("python", "coding", "math", "science", "history", "astronomy",
		"physics", "chemistry", "biology", "tutorial", "school",
		"learning", "lectures", "programming", "data science",
		"engineering", "technology", "class", "study", "exam prep",
		"knowledge", "skills", "books", "educational")},
	{"Travel & Events", keywordSet("travel", "vlog", "adventure", "backpacking", "vacation",
		"road trip", "exploring", "tourism", "culture", "local",
		"sightseeing", "nature", "hiking", "beach", "camping", "hotels",
		"flights", "cruise", "journey", "getaway", "landmarks")},
	{"Sports", keywordSet("workout", "soccer", "basketball", "stunt", "fitness", "training",
		"exercise", "gym", "bodybuilding", "yoga", "running", "marathon",
		"football", "tennis", "swimming", "racing", "extreme sports",
		"baseball", "golf", "surfing", "skateboarding", "cycling", "athlete")},
	{"Comedy", keywordSet("funny", "parody", "skit", "prank", "humor", "laugh", "jokes",
		"stand-up", "satire", "spoof", "roast", "entertainment",
		"hilarious", "memes", "fails", "reaction", "comedy", "sarcasm")},
	{"Music", keywordSet("music", "song", "cover", "album", "live", "concert", "band",
		"performance", "singing", "karaoke", "playlist", "dance",
		"instrumental", "remix", "DJ", "rap", "hip-hop", "rock", "pop",
		"EDM", "classical", "country", "jazz", "R&B", "lyrics")},
	{"News & Politics", keywordSet("news", "breaking", "current events", "politics", "debate",
		"government", "election", "world news", "economy", "protest",
		"crisis", "analysis", "interview", "speech", "opinion", "law",
		"policy", "scandal", "activism", "press")},
	{"Pets & Animals", keywordSet("pets", "animals", "cute", "funny animals", "wildlife", "dogs",
		"cats", "birds", "fish", "reptiles", "horses", "puppies", "kittens",
		"zoo", "nature", "animal care", "training", "rescue", "habitat",
		"adoption")},
	{"Entertainment", keywordSet("movies", "tv", "celebrities", "reviews", "trailer", "film",
		"series", "drama", "reaction", "binge", "entertainment", "actors",
		"director", "streaming", "Netflix", "HBO", "Disney", "Hollywood",
		"premiere", "red carpet", "award show")},
	{"Technology", keywordSet("tech", "gadgets", "smartphones", "apps", "software", "AI",
		"robots", "innovation", "review", "tutorial", "coding",
		"programming", "devices", "unboxing", "gaming tech",
		"computers", "laptops", "hardware", "VR", "AR", "5G", "IoT",
		"cloud", "blockchain")},
	{"Food & Drink", keywordSet("cooking", "recipes", "food", "drink", "baking", "desserts",
		"grilling", "kitchen", "cuisine", "restaurant", "review", "tasting",
		"healthy eating", "vegan", "vegetarian", "BBQ", "snacks", "chefs",
		"cocktails", "smoothies", "wine", "coffee", "beer", "street food")},
	{"Health & Wellness", keywordSet("mental health", "self-care", "therapy", "wellness", "meditation",
		"stress relief", "yoga", "mindfulness", "health tips", "nutrition",
		"work-life balance", "exercise", "diet", "healthy living")},
	{"Autos & Vehicles", keywordSet("cars", "motorcycles", "vehicles", "driving", "racing",
		"car reviews", "road trip", "auto repair", "engines", "trucks",
		"customization", "tuning", "electric vehicles", "car shows", "SUV")},
	{"Kids & Family", keywordSet("toys", "kids", "family", "parenting", "children", "games",
		"activities", "playtime", "crafts for kids", "education for kids",
		"nursery rhymes", "stories", "babies", "play", "fun")},
	{"Science & Nature", keywordSet("experiments", "space", "nature", "biology", "geology",
		"wildlife", "science facts", "physics", "chemistry",
		"astrophysics", "natural wonders", "climate", "ecosystem",
		"universe", "ecology", "environment")},
}

// ClassifyCategory picks a platform category for free text.
//
// Tokens of title and description (whitespace split, lower-cased) are scanned
// in order; for each token the keyword table is scanned in order. The first
// category that lists the token and is offered by categories this run wins.
// Without a match the result is DefaultCategory.
func ClassifyCategory(title, description string, categories model.CategoryMap) string {
	available := make(map[string]struct{}, len(categories))
	for _, name := range categories {
		available[name] = struct{}{}
	}

	tokens := append(strings.Fields(strings.ToLower(title)), strings.Fields(strings.ToLower(description))...)
	for _, token := range tokens {
		for _, cat := range categoryTable {
			if _, ok := cat.keywords[token]; !ok {
				continue
			}
			if _, ok := available[cat.name]; ok {
				return cat.name
			}
		}
	}
	return DefaultCategory
}
