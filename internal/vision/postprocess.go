package vision

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Location tokens quantize each axis into this many bins.
const locationBins = 1000

// Regions is the shape of box-producing directives.
type Regions struct {
	Bboxes [][]float64 `json:"bboxes"`
	Labels []string    `json:"labels"`
}

// Quads is the shape of OCR-with-region output: 8 coordinates per text run.
type Quads struct {
	QuadBoxes [][]float64 `json:"quad_boxes"`
	Labels    []string    `json:"labels"`
}

// Polygons is the shape of segmentation output: per instance, a list of flat x,y polygons.
type Polygons struct {
	Polygons [][][]float64 `json:"polygons"`
	Labels   []string      `json:"labels"`
}

type shape int

const (
	shapeText shape = iota
	shapeRegions
	shapeQuads
	shapePolygons
)

var directiveShapes = map[string]shape{
	"<OD>":                                shapeRegions,
	"<DENSE_REGION_CAPTION>":              shapeRegions,
	"<REGION_PROPOSAL>":                   shapeRegions,
	"<CAPTION_TO_PHRASE_GROUNDING>":       shapeRegions,
	"<OPEN_VOCABULARY_DETECTION>":         shapeRegions,
	"<OCR_WITH_REGION>":                   shapeQuads,
	"<REFERRING_EXPRESSION_SEGMENTATION>": shapePolygons,
	"<REGION_TO_SEGMENTATION>":            shapePolygons,
}

var (
	tokenRe   = regexp.MustCompile(`<loc_(\d+)>|<sep>|<[^<>]*>|[^<]+`)
	specialRe = regexp.MustCompile(`</?s>|<pad>|<unk>|<loc_\d+>|<sep>`)
)

// PostProcess turns raw generated text into the directive's result shape,
// keyed by the directive. Coordinates are scaled to the image's pixel size.
func PostProcess(raw, directive string, width, height int) (map[string]any, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	directive = strings.TrimSpace(directive)
	var value any
	switch directiveShapes[directive] {
	case shapeRegions:
		value = parseRegions(raw, width, height)
	case shapeQuads:
		value = parseQuads(raw, width, height)
	case shapePolygons:
		value = parsePolygons(raw, width, height)
	default:
		value = cleanText(raw, directive)
	}
	return map[string]any{directive: value}, nil
}

func cleanText(raw, directive string) string {
	s := specialRe.ReplaceAllString(raw, "")
	if directive != "" {
		s = strings.TrimPrefix(strings.TrimSpace(s), directive)
	}
	return strings.TrimSpace(s)
}

type token struct {
	loc  int // -1 when not a location
	sep  bool
	text string
}

func tokenize(raw string) []token {
	var out []token
	for _, m := range tokenRe.FindAllStringSubmatch(raw, -1) {
		switch {
		case m[1] != "":
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			out = append(out, token{loc: n})
		case m[0] == "<sep>":
			out = append(out, token{loc: -1, sep: true})
		case strings.HasPrefix(m[0], "<"):
			// special or directive tokens carry no payload
		default:
			out = append(out, token{loc: -1, text: m[0]})
		}
	}
	return out
}

// dequantize maps a bin index to the centre of its pixel span.
func dequantize(bin, size int) float64 {
	if bin < 0 {
		bin = 0
	}
	if bin >= locationBins {
		bin = locationBins - 1
	}
	return (float64(bin) + 0.5) * float64(size) / locationBins
}

// groups walks the tokens and emits every run of n consecutive locations
// together with the most recent text label.
func groups(tokens []token, n int, emit func(label string, locs []int)) {
	label := ""
	var locs []int
	for _, t := range tokens {
		switch {
		case t.loc >= 0:
			locs = append(locs, t.loc)
			if len(locs) == n {
				emit(label, locs)
				locs = nil
			}
		case t.sep:
			locs = nil
		case strings.TrimSpace(t.text) != "":
			locs = nil
			label = strings.TrimSpace(t.text)
		}
	}
}

func parseRegions(raw string, w, h int) Regions {
	r := Regions{Bboxes: [][]float64{}, Labels: []string{}}
	groups(tokenize(raw), 4, func(label string, l []int) {
		r.Bboxes = append(r.Bboxes, []float64{
			dequantize(l[0], w), dequantize(l[1], h),
			dequantize(l[2], w), dequantize(l[3], h),
		})
		r.Labels = append(r.Labels, label)
	})
	return r
}

func parseQuads(raw string, w, h int) Quads {
	q := Quads{QuadBoxes: [][]float64{}, Labels: []string{}}
	groups(tokenize(raw), 8, func(label string, l []int) {
		box := make([]float64, 8)
		for i, bin := range l {
			if i%2 == 0 {
				box[i] = dequantize(bin, w)
			} else {
				box[i] = dequantize(bin, h)
			}
		}
		q.QuadBoxes = append(q.QuadBoxes, box)
		q.Labels = append(q.Labels, label)
	})
	return q
}

// parsePolygons starts a new instance at each text label and a new polygon
// at each separator. Polygons with fewer than three points are dropped.
func parsePolygons(raw string, w, h int) Polygons {
	p := Polygons{Polygons: [][][]float64{}, Labels: []string{}}
	var instance [][]float64
	var current []float64
	var label string
	var started bool
	pending := -1
	closePolygon := func() {
		if len(current) >= 6 {
			instance = append(instance, current)
		}
		current = nil
		pending = -1
	}
	closeInstance := func() {
		closePolygon()
		if len(instance) > 0 {
			p.Polygons = append(p.Polygons, instance)
			p.Labels = append(p.Labels, label)
		}
		instance = nil
	}
	for _, t := range tokenize(raw) {
		switch {
		case t.loc >= 0:
			started = true
			if pending < 0 {
				pending = t.loc
				continue
			}
			current = append(current, dequantize(pending, w), dequantize(t.loc, h))
			pending = -1
		case t.sep:
			closePolygon()
		case strings.TrimSpace(t.text) != "":
			if started {
				closeInstance()
			}
			label = strings.TrimSpace(t.text)
		}
	}
	closeInstance()
	return p
}
