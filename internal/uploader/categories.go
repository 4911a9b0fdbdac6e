package uploader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/lvcoi/ytup/internal/model"
)

// FallbackCategories is used when the platform list cannot be fetched.
func FallbackCategories() model.CategoryMap {
	return model.CategoryMap{"22": "People & Blogs"}
}

// FetchCategories lists the assignable categories for region. The returned
// map is always usable: on failure or an empty list it is the fallback map and
// the error says why.
func FetchCategories(ctx context.Context, client *http.Client, baseURL, region string) (model.CategoryMap, error) {
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if baseURL != "" {
		opts = append(opts, option.WithEndpoint(strings.TrimRight(baseURL, "/")+"/"))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return FallbackCategories(), fmt.Errorf("create youtube service: %w", err)
	}

	resp, err := svc.VideoCategories.List([]string{"snippet"}).RegionCode(region).Context(ctx).Do()
	if err != nil {
		return FallbackCategories(), fmt.Errorf("list categories: %w", classify(err))
	}
	cats := make(model.CategoryMap, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil || item.Snippet == nil || !item.Snippet.Assignable {
			continue
		}
		cats[item.Id] = item.Snippet.Title
	}
	if len(cats) == 0 {
		return FallbackCategories(), errors.New("no assignable categories returned")
	}
	return cats, nil
}
