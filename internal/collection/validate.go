package collection

import (
	"context"
	"fmt"
	"strings"

	"github.com/conatus-oss/dana-archive/internal/entity"
)

// validate implements the validation semantics of spec.md §4.3: drop
// entries not in schema, apply each property's variant-specific coercion,
// enforce required/repeated cardinality, and accumulate per-property error
// messages.
func (s *Service) validate(ctx context.Context, schema []entity.SchemaProperty, raw entity.Metadata) (entity.Metadata, entity.ValidationErrors, error) {
	cleaned := entity.Metadata{}
	errs := entity.ValidationErrors{}

	for _, p := range schema {
		values := raw[p.ID]

		coerced, propErrs, err := s.coerceValues(ctx, p, values)
		if err != nil {
			return nil, nil, err
		}
		if len(propErrs) > 0 {
			errs[p.ID] = append(errs[p.ID], propErrs...)
			continue
		}

		nonEmpty := 0
		for _, v := range coerced {
			if v != "" {
				nonEmpty++
			}
		}

		if !p.Repeated && len(coerced) > 1 {
			errs[p.ID] = append(errs[p.ID], fmt.Sprintf("property %q is not repeated but received %d values", p.ID, len(coerced)))
			continue
		}
		if p.Required && nonEmpty == 0 {
			errs[p.ID] = append(errs[p.ID], fmt.Sprintf("property %q is required", p.ID))
			continue
		}

		cleaned[p.ID] = coerced
	}

	return cleaned, errs, nil
}

// coerceValues is the variant dispatch behind cast_or_create_property_value
// (spec.md §4.4), shared by Collection Service validation and the Asset
// Service's create/update paths.
func (s *Service) coerceValues(ctx context.Context, p entity.SchemaProperty, raw []string) ([]string, []string, error) {
	switch p.Variant {
	case entity.VariantControlledDatabaseRef:
		return s.coerceControlledReferences(ctx, p, raw)
	case entity.VariantFreeText:
		fallthrough
	default:
		return coerceFreeText(raw), nil, nil
	}
}

// coerceFreeText stringifies each raw value (already strings in this
// model) and collapses whitespace-only values to empty, per spec.md §4.3.
func coerceFreeText(raw []string) []string {
	out := make([]string, len(raw))
	for i, v := range raw {
		if strings.TrimSpace(v) == "" {
			out[i] = ""
		} else {
			out[i] = v
		}
	}
	return out
}

func (s *Service) coerceControlledReferences(ctx context.Context, p entity.SchemaProperty, raw []string) ([]string, []string, error) {
	if s.assets == nil {
		return coerceFreeText(raw), nil, nil
	}

	isLabelCollection, err := s.IsLabelRecordCollection(ctx, p.TargetCollectionID)
	if err != nil {
		return nil, nil, err
	}

	out := make([]string, 0, len(raw))
	var errs []string

	for _, v := range raw {
		if strings.TrimSpace(v) == "" {
			out = append(out, "")
			continue
		}

		exists, err := s.assets.AssetExists(ctx, p.TargetCollectionID, v)
		if err != nil {
			return nil, nil, err
		}
		if exists {
			out = append(out, v)
			continue
		}

		if !isLabelCollection {
			errs = append(errs, fmt.Sprintf("property %q references unknown asset %q in collection %q", p.ID, v, p.TargetCollectionID))
			continue
		}

		id, err := s.assets.FindOrCreateLabelRecord(ctx, p.TargetCollectionID, v)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, id)
	}

	return out, errs, nil
}
