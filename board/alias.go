package board

// Alias is the ordered list of accepted keys for one logical field. The
// first name is canonical; the rest are compatibility names.
type Alias []string

var (
	FieldLatitude    = Alias{"latitude", "lat"}
	FieldLongitude   = Alias{"longitude", "lng"}
	FieldResponsible = Alias{"responsable", "utilisateur"}
	FieldLabel       = Alias{"element", "entreprise"}
)

// Canonical returns the canonical key.
func (a Alias) Canonical() string {
	if len(a) == 0 {
		return ""
	}
	return a[0]
}

// Lookup returns the first alias present in data with a non-empty value.
func (a Alias) Lookup(data map[string]any) (string, any, bool) {
	for _, k := range a {
		v, ok := data[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		return k, v, true
	}
	return "", nil, false
}

// Text is Lookup rendered as a string; "" when unresolved.
func (a Alias) Text(data map[string]any) string {
	_, v, ok := a.Lookup(data)
	if !ok {
		return ""
	}
	return FormatValue(v)
}

// CoordinatePair is a latitude/longitude key pair.
type CoordinatePair struct {
	Lat string
	Lng string
}

// CoordinatePairs lists the accepted coordinate key pairs, canonical first.
var CoordinatePairs = []CoordinatePair{
	{Lat: FieldLatitude[0], Lng: FieldLongitude[0]},
	{Lat: FieldLatitude[1], Lng: FieldLongitude[1]},
}

// Coordinates selects the first pair whose latitude key holds a value and
// parses both halves. ok is false when no pair is present or either half
// does not parse.
func Coordinates(data map[string]any) (lat, lng float64, ok bool) {
	for _, p := range CoordinatePairs {
		if _, _, present := (Alias{p.Lat}).Lookup(data); !present {
			continue
		}
		lat, okLat := ParseNumber(data[p.Lat])
		lng, okLng := ParseNumber(data[p.Lng])
		if !okLat || !okLng {
			return 0, 0, false
		}
		return lat, lng, true
	}
	return 0, 0, false
}
