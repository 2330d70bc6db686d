package f1data

// Wire types for the Jolpica/Ergast-compatible JSON API. Only the fields
// the client reads are declared.

type driversResponse struct {
	MRData struct {
		DriverTable struct {
			Drivers []apiDriver `json:"Drivers"`
		} `json:"DriverTable"`
	} `json:"MRData"`
}

type apiDriver struct {
	DriverID        string `json:"driverId"`
	PermanentNumber string `json:"permanentNumber"`
	GivenName       string `json:"givenName"`
	FamilyName      string `json:"familyName"`
}

type racesResponse struct {
	MRData struct {
		RaceTable struct {
			Season string    `json:"season"`
			Races  []apiRace `json:"Races"`
		} `json:"RaceTable"`
	} `json:"MRData"`
}

type apiRace struct {
	Season   string `json:"season"`
	Round    string `json:"round"`
	RaceName string `json:"raceName"`
	Circuit  struct {
		CircuitName string `json:"circuitName"`
		Location    struct {
			Locality string `json:"locality"`
			Country  string `json:"country"`
		} `json:"Location"`
	} `json:"Circuit"`
	Date string `json:"date"`
	Time string `json:"time"`
}

type resultsResponse struct {
	MRData struct {
		RaceTable struct {
			Races []struct {
				Results []apiResult `json:"Results"`
			} `json:"Races"`
		} `json:"RaceTable"`
	} `json:"MRData"`
}

type apiResult struct {
	Position string    `json:"position"`
	Driver   apiDriver `json:"Driver"`
	Constructor struct {
		ConstructorID string `json:"constructorId"`
		Name          string `json:"name"`
	} `json:"Constructor"`
}
