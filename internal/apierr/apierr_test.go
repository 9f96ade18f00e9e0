package apierr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorRendersExpectedShape(t *testing.T) {
	err := New("race.lua", "GetPlayerVehicles", "(expected player ID)")
	assert.Equal(t, "race.lua | Incorrect Call of GetPlayerVehicles (expected player ID)", err.Error())
}
