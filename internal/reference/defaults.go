package reference

// DefaultReferences returns the curated DermNet NZ topics for the built-in
// skin lesion catalog. Vascular lesion is a broad category without a single
// topic page, so it falls back to the site's own search.
func DefaultReferences() map[string]*string {
	topic := func(slug string) *string {
		u := "https://dermnetnz.org/topics/" + slug
		return &u
	}
	return map[string]*string{
		"actinic keratosis":          topic("actinic-keratosis"),
		"atopic dermatitis":          topic("atopic-dermatitis"),
		"benign keratosis":           topic("seborrhoeic-keratoses"),
		"dermatofibroma":             topic("dermatofibroma"),
		"melanocytic nevus":          topic("melanocytic-naevi-of-the-skin"),
		"melanoma":                   topic("melanoma"),
		"squamous cell carcinoma":    topic("cutaneous-squamous-cell-carcinoma"),
		"tinea ringworm candidiasis": topic("tinea-corporis"),
		"vascular lesion":            nil,
	}
}
