package db

import (
	"testing"

	"github.com/lvcoi/ytup/internal/model"
)

func TestClassifyCategory(t *testing.T) {
	all := model.CategoryMap{
		"1": "Film & Animation", "10": "Music", "15": "Pets & Animals", "17": "Sports",
		"20": "Gaming", "23": "Comedy", "24": "Entertainment", "26": "Howto & Style",
		"27": "Education", "28": "Science & Technology",
	}

	tests := []struct {
		name        string
		title       string
		description string
		categories  model.CategoryMap
		want        string
	}{
		{
			name:       "title keyword",
			title:      "EPIC Minecraft speedrun",
			categories: all,
			want:       "Gaming",
		},
		{
			name:       "token order beats table order",
			title:      "funny tutorial",
			categories: all,
			want:       "Comedy",
		},
		{
			name:       "first matching token wins",
			title:      "python tutorial",
			categories: all,
			want:       "Education",
		},
		{
			name:       "shared keyword resolves to first table entry",
			title:      "tutorial",
			categories: all,
			want:       "Howto & Style",
		},
		{
			name:        "unavailable category skipped",
			title:       "tutorial",
			categories:  model.CategoryMap{"27": "Education"},
			want:        "Education",
			description: "",
		},
		{
			name:        "description tokens scanned after title",
			title:       "You will not believe this",
			description: "A wild PRANK on my roommate",
			categories:  all,
			want:        "Comedy",
		},
		{
			name:       "mixed-case keyword in table",
			title:      "building a diy shelf",
			categories: all,
			want:       "Howto & Style",
		},
		{
			name:       "no keyword",
			title:      "Untitled clip",
			categories: all,
			want:       DefaultCategory,
		},
		{
			name:       "keyword present but category unavailable",
			title:      "yoga",
			categories: model.CategoryMap{"23": "Comedy"},
			want:       DefaultCategory,
		},
		{
			name:       "punctuation is part of the token",
			title:      "funny!",
			categories: all,
			want:       DefaultCategory,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyCategory(tt.title, tt.description, tt.categories)
			if got != tt.want {
				t.Errorf("ClassifyCategory() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyCategoryDeterministic(t *testing.T) {
	cats := model.CategoryMap{"17": "Sports", "15": "Pets & Animals", "22": "People & Blogs"}
	first := ClassifyCategory("dog training", "at the gym", cats)
	for i := 0; i < 50; i++ {
		if got := ClassifyCategory("dog training", "at the gym", cats); got != first {
			t.Fatalf("iteration %d: got %q, want %q", i, got, first)
		}
	}
	if first != "Sports" {
		t.Fatalf("expected Sports (training is listed under Sports first), got %q", first)
	}
}
