package era

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type tableFile struct {
	Eras Table `yaml:"eras"`
}

// LoadFile reads an era table from a YAML file of the form
//
//	eras:
//	  - name: Hadean
//	    start_year: -5000000000
//	    end_year: -4000000000
//	    gradient: "radial-gradient(...)"
//	    image: /static/img/hadean.webp
//
// The table is validated before it is returned.
func LoadFile(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading era file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML era table.
func Parse(data []byte) (Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing era file: %w", err)
	}
	if err := f.Eras.Validate(); err != nil {
		return nil, fmt.Errorf("invalid era table: %w", err)
	}
	return f.Eras, nil
}

// Marshal encodes a table in the LoadFile format.
func Marshal(t Table) ([]byte, error) {
	return yaml.Marshal(tableFile{Eras: t})
}
