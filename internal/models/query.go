package models

import "fmt"

// QueryKey identifies the area sent to the listings API. Exactly one of Zip
// or the City/State pair is set.
type QueryKey struct {
	Zip   string `json:"zip,omitempty"`
	City  string `json:"city,omitempty"`
	State string `json:"state,omitempty"`
}

func ZipKey(zip string) QueryKey {
	return QueryKey{Zip: zip}
}

func CityStateKey(city, state string) QueryKey {
	return QueryKey{City: city, State: state}
}

func (k QueryKey) IsZip() bool {
	return k.Zip != ""
}

func (k QueryKey) IsZero() bool {
	return k.Zip == "" && k.City == "" && k.State == ""
}

// Keyword is the free-text search term the upstream expects
func (k QueryKey) Keyword() string {
	if k.IsZip() {
		return k.Zip
	}
	return fmt.Sprintf("%s, %s", k.City, k.State)
}

func (k QueryKey) String() string {
	return k.Keyword()
}
