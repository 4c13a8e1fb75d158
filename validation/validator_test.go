package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name   string   `json:"name" validate:"required"`
	Budget *int     `json:"budget" validate:"omitempty,gte=0"`
	Tags   []string `json:"tags" validate:"max=2,dive,max=5"`
}

func TestValidateStruct_Valid(t *testing.T) {
	n := 10
	assert.Nil(t, ValidateStruct(&sample{Name: "x", Budget: &n, Tags: []string{"a"}}))
}

func TestValidateStruct_ReportsJSONFieldNames(t *testing.T) {
	n := -1
	verr := ValidateStruct(&sample{Budget: &n, Tags: []string{"a", "b", "c"}})
	require.NotNil(t, verr)

	fields := map[string]string{}
	for _, f := range verr.Fields {
		fields[f.Field] = f.Tag
	}
	assert.Equal(t, "required", fields["name"])
	assert.Equal(t, "gte", fields["budget"])
	assert.Equal(t, "max", fields["tags"])
	assert.Contains(t, verr.Error(), "name is required")
}

func TestValidateStruct_DivesIntoSlices(t *testing.T) {
	verr := ValidateStruct(&sample{Name: "x", Tags: []string{"toolong"}})
	require.NotNil(t, verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "tags[0]", verr.Fields[0].Field)
}

func TestNew(t *testing.T) {
	verr := New("budgetMax", "gtefield", "budgetMax must be greater than or equal to budgetMin")
	assert.Equal(t, "budgetMax must be greater than or equal to budgetMin", verr.Error())
}
