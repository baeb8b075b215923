package algolia

import (
	"encoding/json"

	"github.com/trieb-work/saleor-apps/internal/domain/saleor"
)

// MetadataToAttributes turns Saleor metadata into a searchable object. A value
// holding valid JSON is stored decoded, anything else as the raw string, and an
// empty value as null.
func MetadataToAttributes(items []saleor.MetadataItem) map[string]any {
	out := make(map[string]any, len(items))
	for _, item := range items {
		if item.Value == "" {
			out[item.Key] = nil
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(item.Value), &decoded); err != nil {
			out[item.Key] = item.Value
			continue
		}
		out[item.Key] = decoded
	}
	return out
}
