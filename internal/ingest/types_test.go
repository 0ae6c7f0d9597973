package ingest

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDepartmentTag(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input string
		want  DepartmentTag
		ok    bool
	}{
		{"Engineering", DeptEngineering, true},
		{"  engineering ", DeptEngineering, true},
		{"people / hr", DeptPeopleHR, true},
		{"CUSTOMER SUCCESS", DeptCustomerSuccess, true},
		{"Engineering.", "", false},
		{"People/HR", "", false},
		{"", "", false},
	}
	for _, tc := range testCases {
		got, ok := ParseDepartmentTag(tc.input)
		require.Equal(t, tc.ok, ok, tc.input)
		require.Equal(t, tc.want, got, tc.input)
	}
}

func TestInputErrorWrapping(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("load company: %w", NewInputError(ErrCompanyDisabled))
	require.True(t, IsInputError(err))
	require.True(t, errors.Is(err, ErrCompanyDisabled))
	require.False(t, IsInputError(errors.New("boom")))
}
