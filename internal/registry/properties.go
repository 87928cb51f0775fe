package registry

import (
	"sort"
	"time"

	"github.com/vmcloud/glance/internal/model"
)

// normalizeProperties turns a caller-supplied property map into
// freshly stamped entries in key order, so both registry
// implementations produce the same collection for the same input.
func normalizeProperties(props map[string]string, now time.Time) []model.Property {
	if len(props) == 0 {
		return nil
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]model.Property, 0, len(keys))
	for _, k := range keys {
		out = append(out, model.Property{
			Key:       k,
			Value:     props[k],
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return out
}

// cloneImage deep-copies a record so callers never alias registry
// internals.
func cloneImage(img *model.Image) *model.Image {
	out := *img
	if img.DeletedAt != nil {
		t := *img.DeletedAt
		out.DeletedAt = &t
	}
	if img.Properties != nil {
		out.Properties = make([]model.Property, len(img.Properties))
		copy(out.Properties, img.Properties)
		for i := range out.Properties {
			if img.Properties[i].DeletedAt != nil {
				t := *img.Properties[i].DeletedAt
				out.Properties[i].DeletedAt = &t
			}
		}
	}
	return &out
}
