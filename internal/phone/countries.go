package phone

import "regexp"

// Country holds the static dialing profile for one supported country.
// Pattern matches the national significant number without a leading trunk zero.
type Country struct {
	ID          string
	Label       string
	CallingCode string
	NationalLen int
	Pattern     *regexp.Regexp
}

// countries is the reference dialing table. Order matters: the
// try-every-country fallback scans it in declaration order, so the first
// country whose pattern matches an ambiguous number wins.
var countries = []Country{
	{ID: "SA", Label: "Saudi Arabia", CallingCode: "966", NationalLen: 9, Pattern: regexp.MustCompile(`^5\d{8}$`)},
	{ID: "AE", Label: "United Arab Emirates", CallingCode: "971", NationalLen: 9, Pattern: regexp.MustCompile(`^5[024568]\d{7}$`)},
	{ID: "KW", Label: "Kuwait", CallingCode: "965", NationalLen: 8, Pattern: regexp.MustCompile(`^[569]\d{7}$`)},
	{ID: "QA", Label: "Qatar", CallingCode: "974", NationalLen: 8, Pattern: regexp.MustCompile(`^[3567]\d{7}$`)},
	{ID: "BH", Label: "Bahrain", CallingCode: "973", NationalLen: 8, Pattern: regexp.MustCompile(`^3\d{7}$`)},
	{ID: "OM", Label: "Oman", CallingCode: "968", NationalLen: 8, Pattern: regexp.MustCompile(`^7\d{7}$`)},
	{ID: "EG", Label: "Egypt", CallingCode: "20", NationalLen: 10, Pattern: regexp.MustCompile(`^1[0125]\d{8}$`)},
	{ID: "JO", Label: "Jordan", CallingCode: "962", NationalLen: 9, Pattern: regexp.MustCompile(`^7[789]\d{7}$`)},
	{ID: "YE", Label: "Yemen", CallingCode: "967", NationalLen: 9, Pattern: regexp.MustCompile(`^7[01378]\d{7}$`)},
	{ID: "IQ", Label: "Iraq", CallingCode: "964", NationalLen: 10, Pattern: regexp.MustCompile(`^7[3-9]\d{8}$`)},
}

// Countries returns the dialing table in declaration order.
func Countries() []Country {
	out := make([]Country, len(countries))
	copy(out, countries)
	return out
}

func countryByID(id string) (Country, bool) {
	for _, c := range countries {
		if c.ID == id {
			return c, true
		}
	}
	return Country{}, false
}
