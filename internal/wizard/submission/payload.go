package submission

import (
	"maps"

	"sprout/internal/wizard/models"
)

// BuildPayload shapes the aggregate into the flow's payload layout. Scalars are
// copied, groups become lists of records, attachments become their ingestion
// references. Keys with no value are left out.
func BuildPayload(flow *models.Flow, agg models.Aggregate, refs map[string]models.Reference) models.Payload {
	payload := models.Payload{}
	for _, key := range flow.Payload.Flat {
		if v, ok := payloadValue(flow, agg, refs, key); ok {
			payload[key] = v
		}
	}
	for _, section := range flow.Payload.Sections {
		nested := map[string]any{}
		for _, key := range section.Keys {
			if v, ok := payloadValue(flow, agg, refs, key); ok {
				nested[key] = v
			}
		}
		payload[section.Name] = nested
	}
	return payload
}

func payloadValue(flow *models.Flow, agg models.Aggregate, refs map[string]models.Reference, key string) (any, bool) {
	if _, _, ok := flow.AttachmentSpec(key); ok {
		ref, ok := refs[key]
		return string(ref), ok
	}
	if _, _, ok := flow.GroupSpec(key); ok {
		g := agg.Group(key)
		records := make([]map[string]any, 0, g.Len())
		if g != nil {
			for _, item := range g.Items {
				records = append(records, maps.Clone(item.Values))
			}
		}
		return records, true
	}
	v, ok := agg.Fields[key]
	if !ok || models.IsEmpty(v) {
		return nil, false
	}
	return v, true
}
