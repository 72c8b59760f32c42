package datastore

// version is the version of the datastore code.
const version = "0.3.0"

// CodeVersion returns the version of the datastore code.
func CodeVersion() string {
	return version
}
