package compiler

// Options carries the site-specific names the generated SQL is built around.
// Alias is the marker admins embed in concept fragments where the compiler
// must substitute the generated table alias.
type Options struct {
	Alias            string
	FieldPersonID    string
	FieldEncounterID string
	AppDB            string
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Alias:            "@",
		FieldPersonID:    "person_id",
		FieldEncounterID: "encounter_id",
		AppDB:            "leaf_app",
	}
}
