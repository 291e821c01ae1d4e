package geocode

// AddressFields mirrors the hidden address inputs of the location form.
type AddressFields struct {
	StreetAddress string `json:"street_address"`
	Locality      string `json:"locality"`
	Region        string `json:"region"`
	Country       string `json:"country"`
	PostalCode    string `json:"postal_code"`
}

func (a AddressFields) IsZero() bool {
	return a == AddressFields{}
}

// Candidate keys per field, first present wins.
var (
	houseKeys    = []string{"house_number", "house_name"}
	roadKeys     = []string{"road"}
	localityKeys = []string{"municipality", "city", "town", "village"}
	regionKeys   = []string{"region", "state", "province", "state_district", "county"}
	countryKeys  = []string{"country", "country_code"}
	postcodeKeys = []string{"postcode"}
)

func ExtractAddress(raw map[string]string) AddressFields {
	return AddressFields{
		// house and road are always joined by a single space, even when both are missing
		StreetAddress: firstOf(raw, houseKeys) + " " + firstOf(raw, roadKeys),
		Locality:      firstOf(raw, localityKeys),
		Region:        firstOf(raw, regionKeys),
		Country:       firstOf(raw, countryKeys),
		PostalCode:    firstOf(raw, postcodeKeys),
	}
}

func firstOf(raw map[string]string, keys []string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != "" {
			return v
		}
	}
	return ""
}
