package layer

// DefaultFeatureKeys is the allow-list of OSM map feature keys that produce a
// layer. Elements tagged with none of them are not drawn.
var DefaultFeatureKeys = []string{
	"aerialway",
	"aeroway",
	"amenity",
	"barrier",
	"boundary",
	"building",
	"craft",
	"emergency",
	"geological",
	"highway",
	"historic",
	"landuse",
	"leisure",
	"man_made",
	"military",
	"natural",
	"office",
	"place",
	"power",
	"public_transport",
	"railway",
	"route",
	"shop",
	"sport",
	"telecom",
	"tourism",
	"waterway",
}

// Classify builds a fresh tree from elements. Each element's tags are scanned
// in its own order and the first tag whose key is in keys places the element
// under [key, value]. A matching key with an empty value ends the scan without
// placing the element. Elements with no matching key are dropped.
func Classify(elements []Element, keys []string) *Node {
	allowed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		allowed[k] = struct{}{}
	}

	root := NewRoot()
	for _, el := range elements {
		if path, ok := classifyPath(el, allowed); ok {
			root.Add(path, Leaf{Element: el})
		}
	}
	return root
}

func classifyPath(el Element, allowed map[string]struct{}) ([]string, bool) {
	for _, t := range el.Tags {
		if _, ok := allowed[t.Key]; !ok {
			continue
		}
		if t.Value == "" {
			return nil, false
		}
		return []string{t.Key, t.Value}, true
	}
	return nil, false
}
