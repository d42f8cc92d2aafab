package params

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ImageSpec lists the image options one model accepts.
type ImageSpec struct {
	AspectRatios       []string
	Sizes              []string
	Qualities          []string
	Styles             []string
	DefaultAspectRatio string
	DefaultQuality     string
	ReferenceImages    bool
	ResponseModalities bool
}

var imageSpecs = map[string]ImageSpec{
	"gemini-2.5-flash-image": {
		AspectRatios:       []string{"1:1", "2:3", "3:2", "3:4", "4:3", "4:5", "5:4", "9:16", "16:9", "21:9"},
		Sizes:              []string{"1024x1024", "832x1248", "1248x832", "864x1184", "1184x864", "896x1152", "1152x896", "768x1344", "1344x768", "1536x672"},
		Qualities:          []string{"standard"},
		DefaultAspectRatio: "1:1",
		DefaultQuality:     "standard",
		ReferenceImages:    true,
		ResponseModalities: true,
	},
	"gpt-image-1": {
		AspectRatios:       []string{"1:1", "3:2", "2:3"},
		Sizes:              []string{"1024x1024", "1536x1024", "1024x1536"},
		Qualities:          []string{"standard", "hd"},
		Styles:             []string{"vivid", "natural"},
		DefaultAspectRatio: "1:1",
		DefaultQuality:     "standard",
	},
	"dall-e-3": {
		AspectRatios:       []string{"1:1"},
		Sizes:              []string{"1024x1024", "1792x1024", "1024x1792"},
		Qualities:          []string{"standard", "hd"},
		Styles:             []string{"vivid", "natural"},
		DefaultAspectRatio: "1:1",
		DefaultQuality:     "standard",
	},
}

var ratioSizes = map[string][]string{
	"1:1":  {"1024x1024"},
	"3:2":  {"1536x1024", "1248x832"},
	"2:3":  {"1024x1536", "832x1248"},
	"4:3":  {"1184x864"},
	"3:4":  {"864x1184"},
	"16:9": {"1344x768", "1792x1024"},
	"9:16": {"768x1344", "1024x1792"},
	"21:9": {"1536x672"},
	"4:5":  {"896x1152"},
	"5:4":  {"1152x896"},
}

// ImageSpecFor returns the image options of modelID.
func ImageSpecFor(modelID string) (ImageSpec, bool) {
	spec, ok := imageSpecs[modelID]
	return spec, ok
}

// SizeForAspectRatio picks the first size in sizes matching ratio, falling
// back to the first supported size.
func SizeForAspectRatio(ratio string, sizes []string) string {
	for _, s := range ratioSizes[ratio] {
		if slices.Contains(sizes, s) {
			return s
		}
	}
	if len(sizes) > 0 {
		return sizes[0]
	}
	return "1024x1024"
}

// ValidateImage checks image options against the model's ImageSpec.
// Unsupported values are replaced by the model default or removed, and a
// warning is returned for each. Models without a spec pass through unchanged.
func ValidateImage(modelID string, in map[string]any) (map[string]any, []string) {
	out := maps.Clone(in)
	if out == nil {
		out = map[string]any{}
	}
	spec, ok := imageSpecs[modelID]
	if !ok {
		return out, nil
	}

	var warnings []string
	unsupported := func(what string, v any, allowed []string) {
		warnings = append(warnings, fmt.Sprintf("%s %q not supported by %s (supported: %s)",
			what, fmt.Sprint(v), modelID, strings.Join(allowed, ", ")))
	}

	if v, ok := out["aspect_ratio"]; ok && !slices.Contains(spec.AspectRatios, fmt.Sprint(v)) {
		unsupported("aspect ratio", v, spec.AspectRatios)
		out["aspect_ratio"] = spec.DefaultAspectRatio
	}
	if v, ok := out["size"]; ok && !slices.Contains(spec.Sizes, fmt.Sprint(v)) {
		unsupported("size", v, spec.Sizes)
		if ratio, ok := out["aspect_ratio"]; ok {
			out["size"] = SizeForAspectRatio(fmt.Sprint(ratio), spec.Sizes)
		} else {
			delete(out, "size")
		}
	}
	if v, ok := out["quality"]; ok && !slices.Contains(spec.Qualities, fmt.Sprint(v)) {
		unsupported("quality", v, spec.Qualities)
		out["quality"] = spec.DefaultQuality
	}
	if v, ok := out["style"]; ok && len(spec.Styles) > 0 && !slices.Contains(spec.Styles, fmt.Sprint(v)) {
		unsupported("style", v, spec.Styles)
		delete(out, "style")
	}
	if _, ok := out["reference_images"]; ok && !spec.ReferenceImages {
		warnings = append(warnings, "reference images not supported by "+modelID)
		delete(out, "reference_images")
	}
	if _, ok := out["response_modalities"]; ok && !spec.ResponseModalities {
		warnings = append(warnings, "response modalities not supported by "+modelID)
		delete(out, "response_modalities")
	}
	return out, warnings
}
