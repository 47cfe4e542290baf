package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/jurassik/jurassik/util"
)

//go:embed process.schema.json
var processSchemaJSON json.RawMessage
var processSchema = util.Must(gojsonschema.NewSchema(gojsonschema.NewBytesLoader(processSchemaJSON)))

// InvalidProcess is a process definition that was rejected.
type InvalidProcess struct {
	// Index is the position of the entry in the processes list
	Index int

	// Name is the name of the entry, if it has one
	Name string

	Errors []string
}

func (p InvalidProcess) Error() string {
	name := p.Name
	if name == "" {
		name = "<unnamed>"
	}

	return fmt.Sprintf("invalid process #%d (%s): %s", p.Index, name, strings.Join(p.Errors, "; "))
}

// validateProcess checks a raw process entry against the process schema.
func validateProcess(raw any) ([]string, error) {
	result, err := processSchema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, err
	}

	if result.Valid() {
		return nil, nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}

	return errs, nil
}
