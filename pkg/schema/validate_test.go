package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func decode(t *testing.T, src string) map[string]any {
	t.Helper()
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
	return doc
}

func TestValidateGraph_Valid(t *testing.T) {
	doc := decode(t, `
id: leave
title: Leave request
layout:
  - {id: s, type: start}
  - {id: n0, type: activity, meta: {role: employee}, task: notify}
  - id: gw
    type: exclusive
    link:
      - {nextId: n1, when: "days > 3", priority: 1}
      - n2
  - {id: n1, type: activity, link: e}
  - {id: n2, type: activity, link: {nextId: e, condition: "true"}}
  - {id: e, type: end}
`)
	assert.NoError(t, ValidateGraph(doc))
}

func TestValidateGraph_Violations(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{
			name:  "Missing Id",
			src:   "layout: [{type: start}, {type: end}]",
			field: "(root)",
		},
		{
			name:  "Unknown Node Type",
			src:   "id: g\nlayout: [{type: start}, {type: gateway}]",
			field: "layout.1.type",
		},
		{
			name:  "Link Without Target",
			src:   "id: g\nlayout: [{type: start, link: {when: x}}, {type: end}]",
			field: "layout.0.link",
		},
		{
			name:  "Unknown Field",
			src:   "id: g\nlayout: [{type: start, next: e}, {type: end}]",
			field: "layout.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGraph(decode(t, tt.src))
			require.Error(t, err)

			errs := ValidationErrors(err)
			require.NotEmpty(t, errs)

			var fields []string
			for _, e := range errs {
				var ve *ValidationError
				require.ErrorAs(t, e, &ve)
				fields = append(fields, ve.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidationErrors_NotAggregate(t *testing.T) {
	assert.Nil(t, ValidationErrors(assert.AnError))
}

func TestAggregateError_Message(t *testing.T) {
	one := &AggregateError{Errors: []error{&ValidationError{Field: "id", Reason: "required"}}}
	assert.Equal(t, `field "id": required`, one.Error())

	two := &AggregateError{Errors: []error{
		&ValidationError{Field: "id", Reason: "required"},
		&ValidationError{Field: "layout.0.type", Reason: "must be one of the following", Value: "gateway"},
	}}
	assert.Contains(t, two.Error(), "2 validation errors")
	assert.Contains(t, two.Error(), "(got gateway)")
}
