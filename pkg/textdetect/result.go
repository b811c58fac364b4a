package textdetect

// UnknownLanguage is used when the response omits a locale.
const UnknownLanguage = "unknown"

// Point is a polygon vertex in pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Result is one detected text block. The first result of a scan is the
// full-text block; the rest are individual words.
type Result struct {
	Text         string  `json:"text"`
	BoundingBox  []Point `json:"bounding_box"`
	LanguageCode string  `json:"language_code"`
}

// Rescale returns a copy with every vertex multiplied by factor. Scan
// reports coordinates in the downsampled image; Rescale(SampleFactor())
// maps them back onto the captured frame.
func (r Result) Rescale(factor int) Result {
	out := r
	out.BoundingBox = make([]Point, len(r.BoundingBox))
	for i, p := range r.BoundingBox {
		out.BoundingBox[i] = Point{X: p.X * factor, Y: p.Y * factor}
	}
	return out
}
