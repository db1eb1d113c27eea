package config

import (
	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON string

var configSchema = jsonschema.MustCompileString("memcompose-config.json", schemaJSON)
