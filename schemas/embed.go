// Package schemas embeds the JSON Schema documents for structured payloads.
package schemas

import "embed"

//go:embed *.schema.json
var files embed.FS

// ResumeProfileFile is the schema file for extracted resume profiles
const ResumeProfileFile = "resume_profile.schema.json"

// Read returns the named schema document
func Read(name string) (string, error) {
	data, err := files.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Names lists the embedded schema files
func Names() []string {
	entries, _ := files.ReadDir(".")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
