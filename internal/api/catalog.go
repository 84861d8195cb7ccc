package api

// CatalogEntry is one selectable language or location.
type CatalogEntry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Languages accepted by keyword generation, keyed by the ads criterion id.
var Languages = []CatalogEntry{
	{1000, "English"},
	{1003, "French"},
	{1005, "German"},
	{1014, "Italian"},
	{1002, "Spanish"},
	{1017, "Japanese"},
	{1018, "Korean"},
	{1020, "Portuguese"},
	{1019, "Polish"},
	{1021, "Russian"},
}

// Locations accepted by keyword generation.
var Locations = []CatalogEntry{
	{2840, "United States"},
	{2036, "Canada"},
	{2250, "United Kingdom"},
	{1000, "Argentina"},
	{2076, "Australia"},
	{2004, "Brazil"},
	{2124, "France"},
	{2276, "Germany"},
	{2384, "India"},
	{2392, "Italy"},
	{2128, "Spain"},
	{2112, "Japan"},
}
