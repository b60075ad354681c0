package model

// ClassifierOutput is the single-shot routing decision produced by the
// classifier (spec.md §3, §4.3). The flag set is closed: adding a new
// flag means updating this struct and the classifier's structured schema
// together.
type ClassifierOutput struct {
	SkipSearch             bool `json:"skipSearch"`
	PersonalSearch          bool `json:"personalSearch"`
	AcademicSearch          bool `json:"academicSearch"`
	DiscussionSearch        bool `json:"discussionSearch"`
	ShowWeatherWidget       bool `json:"showWeatherWidget"`
	ShowStockWidget         bool `json:"showStockWidget"`
	ShowCalculationWidget   bool `json:"showCalculationWidget"`
	ShowProductWidget       bool `json:"showProductWidget"`
	ShowHotelWidget         bool `json:"showHotelWidget"`
	ShowPlaceWidget         bool `json:"showPlaceWidget"`
	ShowMovieWidget         bool `json:"showMovieWidget"`

	// StandaloneFollowUp is a self-contained reformulation of the user's
	// last turn, pronouns/vague-references resolved using history. Used
	// downstream as the canonical query.
	StandaloneFollowUp string `json:"standaloneFollowUp"`
}

// PermissiveDefault is the fail-open ClassifierOutput used when the
// classifier errors or returns an invalid shape (spec.md §4.3, §7):
// skipSearch=false, all widget flags false, web search runs by default
// via action enablement (see the EnabledFor of action.NewWebSearch).
func PermissiveDefault(query string) ClassifierOutput {
	return ClassifierOutput{
		SkipSearch:          false,
		StandaloneFollowUp:  query,
	}
}
