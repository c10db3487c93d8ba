package validate

// Func validates one raw field value.
type Func func(raw string) string

// Validators maps form field names to their validator.
var Validators = map[string]Func{
	"latitude":    Latitude,
	"longitude":   Longitude,
	"name":        Name,
	"person_name": Name,
	"description": Description,
}

// Fields runs the known validators over values and returns the message of every
// invalid field. Fields without a validator are ignored.
func Fields(values map[string]string) map[string]string {
	errs := make(map[string]string)
	for field, raw := range values {
		check, ok := Validators[field]
		if !ok {
			continue
		}
		if message := check(raw); message != "" {
			errs[field] = message
		}
	}
	return errs
}
