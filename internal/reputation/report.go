package reputation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/triage-ai/palisade/package_guard/internal/extract"
)

// reportSchema is the only document shape accepted from the scoring tool.
// Alerts live at data.self.alerts; each needs a severity and a name or type.
const reportSchema = `{
  "type": "object",
  "required": ["data"],
  "properties": {
    "data": {
      "type": "object",
      "required": ["self"],
      "properties": {
        "self": {
          "type": "object",
          "required": ["alerts"],
          "properties": {
            "alerts": {
              "type": "array",
              "items": {
                "type": "object",
                "required": ["severity"],
                "anyOf": [{"required": ["type"]}, {"required": ["name"]}],
                "properties": {
                  "type": {"type": "string"},
                  "name": {"type": "string"},
                  "severity": {"enum": ["critical", "high", "middle", "low"]},
                  "category": {"type": "string"}
                }
              }
            }
          }
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func reportValidator() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		var doc any
		if err := json.Unmarshal([]byte(reportSchema), &doc); err != nil {
			schemaErr = fmt.Errorf("report schema unmarshal: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("report.json", doc); err != nil {
			schemaErr = fmt.Errorf("report schema compile: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile("report.json")
	})
	return compiledSchema, schemaErr
}

type rawAlert struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Category string `json:"category"`
}

type rawReport struct {
	Data struct {
		Self struct {
			Alerts []rawAlert `json:"alerts"`
		} `json:"self"`
	} `json:"data"`
}

// ParseReport validates and decodes the tool's --json output for ref.
// Any document that does not match the expected shape is an error.
func ParseReport(data []byte, ref extract.PackageRef) (*Report, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty report")
	}

	sch, err := reportValidator()
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("report is not valid JSON: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("report shape: %w", err)
	}

	var raw rawReport
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}

	report := &Report{Package: ref, Alerts: make([]Alert, 0, len(raw.Data.Self.Alerts))}
	for _, ra := range raw.Data.Self.Alerts {
		sev, err := ParseSeverity(ra.Severity)
		if err != nil {
			return nil, err
		}
		name := ra.Name
		if name == "" {
			name = ra.Type
		}
		report.Alerts = append(report.Alerts, Alert{
			Name:     name,
			Severity: sev,
			Category: ra.Category,
		})
	}
	return report, nil
}
